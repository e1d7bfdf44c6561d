package api

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"notedigest/internal/appinfo"
	"notedigest/internal/manager"
	"notedigest/internal/schedule"
	"notedigest/internal/store"
)

// MCPServer exposes the scheduling surface as MCP tools so an agent can
// inspect and trigger digests over stdio.
type MCPServer struct {
	Store   store.Store
	Manager *manager.Manager
	UserID  string
}

func (s *MCPServer) user() string {
	if v := strings.TrimSpace(s.UserID); v != "" {
		return v
	}
	return defaultUserID
}

type listSchedulesArgs struct{}

type listSchedulesResult struct {
	Schedules []schedule.Config `json:"schedules"`
}

type runScheduleArgs struct {
	ScheduleID string `json:"schedule_id" jsonschema:"the id of the schedule to run now"`
}

type forceCheckArgs struct{}

type recentExecutionsArgs struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of executions to return, default 20"`
}

type recentExecutionsResult struct {
	Executions []schedule.Execution `json:"executions"`
}

// Run serves the MCP tool set over stdio until ctx is canceled.
func (s *MCPServer) Run(ctx context.Context) error {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    appinfo.Name,
		Version: appinfo.Version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_schedules",
		Description: "List the digest schedules for the current user, including next run times and run counts.",
	}, s.listSchedules)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "run_schedule",
		Description: "Run one digest schedule immediately, regardless of its next run time.",
	}, s.runSchedule)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "force_check",
		Description: "Sweep all schedules right now and execute every one that is due.",
	}, s.forceCheck)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "recent_executions",
		Description: "Return the most recent digest executions for the current user, newest first.",
	}, s.recentExecutions)

	return server.Run(ctx, &mcp.StdioTransport{})
}

func (s *MCPServer) listSchedules(ctx context.Context, _ *mcp.CallToolRequest, _ listSchedulesArgs) (*mcp.CallToolResult, listSchedulesResult, error) {
	schedules, err := s.Store.ListSchedulesForUser(ctx, s.user())
	if err != nil {
		return nil, listSchedulesResult{}, err
	}
	if schedules == nil {
		schedules = []schedule.Config{}
	}
	return nil, listSchedulesResult{Schedules: schedules}, nil
}

func (s *MCPServer) runSchedule(ctx context.Context, _ *mcp.CallToolRequest, args runScheduleArgs) (*mcp.CallToolResult, *schedule.Execution, error) {
	if s.Manager == nil {
		return nil, nil, fmt.Errorf("scheduler is not running")
	}
	id := strings.TrimSpace(args.ScheduleID)
	if id == "" {
		return nil, nil, fmt.Errorf("schedule_id is required")
	}
	exec, err := s.Manager.ExecuteNow(ctx, id, s.user())
	if err != nil {
		return nil, nil, err
	}
	return nil, exec, nil
}

func (s *MCPServer) forceCheck(ctx context.Context, _ *mcp.CallToolRequest, _ forceCheckArgs) (*mcp.CallToolResult, manager.Report, error) {
	if s.Manager == nil {
		return nil, manager.Report{}, fmt.Errorf("scheduler is not running")
	}
	report, err := s.Manager.ForceCheck(ctx)
	if err != nil {
		return nil, report, err
	}
	return nil, report, nil
}

func (s *MCPServer) recentExecutions(ctx context.Context, _ *mcp.CallToolRequest, args recentExecutionsArgs) (*mcp.CallToolResult, recentExecutionsResult, error) {
	limit := args.Limit
	if limit <= 0 {
		limit = 20
	}
	executions, err := s.Store.ListExecutionsForUser(ctx, s.user(), limit)
	if err != nil {
		return nil, recentExecutionsResult{}, err
	}
	if executions == nil {
		executions = []schedule.Execution{}
	}
	return nil, recentExecutionsResult{Executions: executions}, nil
}
