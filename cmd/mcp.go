package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"repolens/internal/fetcher"
	"repolens/internal/index"
	"repolens/internal/rag"
	"repolens/internal/store"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start an MCP server exposing repository search and Q&A tools",
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	svc, err := newServices(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	queue := index.NewQueue(cmd.Context(), svc.indexer, 1, logger)
	defer queue.Close()

	s := newMCPServer(mcpDeps{
		retriever: svc.retriever,
		answerer:  svc.orchestrator,
		estimator: svc.indexer,
		jobs:      queue,
		projects:  svc.store,
		token:     cfg.GitHubToken,
	})
	return mcpserver.ServeStdio(s)
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

type mcpDeps struct {
	retriever interface {
		Retrieve(ctx context.Context, question, projectID string) ([]store.SearchResult, error)
	}
	answerer interface {
		Answer(ctx context.Context, question, projectID string) (*rag.Answer, error)
	}
	estimator interface {
		EstimateCost(ctx context.Context, ref string, creds fetcher.Credentials) (int, error)
	}
	jobs interface {
		Submit(req index.Request) (string, error)
		Status(id string) (index.Job, error)
	}
	projects interface {
		ListFiles(ctx context.Context, projectID string) ([]store.FileStat, error)
		GetMeta(ctx context.Context, projectID, key string) (string, error)
	}
	token string
}

func newMCPServer(d mcpDeps) *mcpserver.MCPServer {
	s := mcpserver.NewMCPServer("repolens", "1.0.0", mcpserver.WithToolCapabilities(false))

	s.AddTool(searchCodebaseTool(), makeSearchHandler(d))
	s.AddTool(askCodebaseTool(), makeAskHandler(d))
	s.AddTool(estimateCostTool(), makeEstimateHandler(d))
	s.AddTool(indexRepositoryTool(), makeIndexHandler(d))
	s.AddTool(indexStatusTool(), makeStatusHandler(d))
	s.AddTool(listIndexedFilesTool(), makeListFilesHandler(d))
	s.AddTool(getProjectOverviewTool(), makeOverviewHandler(d))
	return s
}

// --- Tool schema builders ---

var readOnlyAnnotation = mcp.ToolAnnotation{
	ReadOnlyHint:    mcp.ToBoolPtr(true),
	DestructiveHint: mcp.ToBoolPtr(false),
	IdempotentHint:  mcp.ToBoolPtr(true),
	OpenWorldHint:   mcp.ToBoolPtr(false),
}

func projectParam() mcp.ToolOption {
	return mcp.WithString("project",
		mcp.Required(),
		mcp.Description("Project ID the repository was indexed under"),
	)
}

func searchCodebaseTool() mcp.Tool {
	return mcp.NewTool("search_codebase",
		mcp.WithDescription("Semantically search an indexed repository. Returns the most relevant code fragments with file paths, line ranges and summaries."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		projectParam(),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural language question or keywords"),
		),
	)
}

func askCodebaseTool() mcp.Tool {
	return mcp.NewTool("ask_codebase",
		mcp.WithDescription("Answer a question about an indexed repository, grounded in its code. Returns the answer followed by its sources."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		projectParam(),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("Question about the repository"),
		),
	)
}

func estimateCostTool() mcp.Tool {
	return mcp.NewTool("estimate_cost",
		mcp.WithDescription("Count the fragments indexing a repository would produce. Each fragment costs one summary and one embedding."),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{
			ReadOnlyHint:    mcp.ToBoolPtr(true),
			DestructiveHint: mcp.ToBoolPtr(false),
			IdempotentHint:  mcp.ToBoolPtr(true),
			OpenWorldHint:   mcp.ToBoolPtr(true),
		}),
		mcp.WithString("repo",
			mcp.Required(),
			mcp.Description("Local directory or GitHub repository (owner/repo or URL)"),
		),
	)
}

func indexRepositoryTool() mcp.Tool {
	return mcp.NewTool("index_repository",
		mcp.WithDescription("Start indexing a repository in the background. Returns a job ID to poll with index_status."),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{
			ReadOnlyHint:    mcp.ToBoolPtr(false),
			DestructiveHint: mcp.ToBoolPtr(false),
			IdempotentHint:  mcp.ToBoolPtr(false),
			OpenWorldHint:   mcp.ToBoolPtr(true),
		}),
		projectParam(),
		mcp.WithString("repo",
			mcp.Required(),
			mcp.Description("Local directory or GitHub repository (owner/repo or URL)"),
		),
		mcp.WithBoolean("replace",
			mcp.Description("Clear the project's existing fragments first (default false)"),
		),
	)
}

func indexStatusTool() mcp.Tool {
	return mcp.NewTool("index_status",
		mcp.WithDescription("Report the state and progress of an indexing job."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Job ID returned by index_repository"),
		),
	)
}

func listIndexedFilesTool() mcp.Tool {
	return mcp.NewTool("list_indexed_files",
		mcp.WithDescription("List the files indexed for a project with their fragment counts."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		projectParam(),
		mcp.WithString("prefix",
			mcp.Description("Optional path prefix filter (e.g. 'src/api/')"),
		),
	)
}

func getProjectOverviewTool() mcp.Tool {
	return mcp.NewTool("get_project_overview",
		mcp.WithDescription("Get the high-level project overview synthesized from the fragment summaries during indexing."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		projectParam(),
	)
}

// --- Handler factories ---

func makeSearchHandler(d mcpDeps) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		project := req.GetString("project", "")
		query := req.GetString("query", "")
		if project == "" || query == "" {
			return mcp.NewToolResultError("project and query are required"), nil
		}

		results, err := d.retriever.Retrieve(ctx, query, project)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
		}
		return mcp.NewToolResultText(formatSearchResults(query, results)), nil
	}
}

func makeAskHandler(d mcpDeps) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		project := req.GetString("project", "")
		question := req.GetString("question", "")
		if project == "" || question == "" {
			return mcp.NewToolResultError("project and question are required"), nil
		}

		ans, err := d.answerer.Answer(ctx, question, project)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("retrieval failed: %v", err)), nil
		}
		defer ans.Stream.Close()

		text, err := rag.Collect(ans.Stream)
		var sb strings.Builder
		sb.WriteString(text)
		if err != nil {
			var genErr *rag.GenerationError
			if !errors.As(err, &genErr) || genErr.Delivered == 0 {
				return mcp.NewToolResultError(fmt.Sprintf("answer failed: %v", err)), nil
			}
			fmt.Fprintf(&sb, "\n\n_(answer interrupted: %v)_", genErr.Err)
		}
		if len(ans.Cited) > 0 {
			sb.WriteString("\n\n**Sources:**\n")
			for _, r := range ans.Cited {
				fmt.Fprintf(&sb, "- `%s` lines %d-%d\n", r.FileName, r.StartLine+1, r.EndLine+1)
			}
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func makeEstimateHandler(d mcpDeps) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		repo := req.GetString("repo", "")
		if repo == "" {
			return mcp.NewToolResultError("repo is required"), nil
		}
		n, err := d.estimator.EstimateCost(ctx, repo, fetcher.Credentials{Token: d.token})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("estimate failed: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("%s would produce %d fragments (one summary and one embedding each).", repo, n)), nil
	}
}

func makeIndexHandler(d mcpDeps) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		project := req.GetString("project", "")
		repo := req.GetString("repo", "")
		if project == "" || repo == "" {
			return mcp.NewToolResultError("project and repo are required"), nil
		}

		id, err := d.jobs.Submit(index.Request{
			ProjectID:   project,
			RepoRef:     repo,
			Credentials: fetcher.Credentials{Token: d.token},
			Replace:     req.GetBool("replace", false),
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("submit failed: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Indexing %s into project %s started. Job ID: %s", repo, project, id)), nil
	}
}

func makeStatusHandler(d mcpDeps) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := req.GetString("job_id", "")
		job, err := d.jobs.Status(id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("job %q: %v", id, err)), nil
		}
		return mcp.NewToolResultText(formatJob(job)), nil
	}
}

func makeListFilesHandler(d mcpDeps) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		project := req.GetString("project", "")
		if project == "" {
			return mcp.NewToolResultError("project is required"), nil
		}
		prefix := req.GetString("prefix", "")

		files, err := d.projects.ListFiles(ctx, project)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list files failed: %v", err)), nil
		}

		var filtered []store.FileStat
		for _, f := range files {
			if strings.HasPrefix(f.FileName, prefix) {
				filtered = append(filtered, f)
			}
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "## Indexed files in %s (%d)\n\n", project, len(filtered))
		for _, f := range filtered {
			fmt.Fprintf(&sb, "- %s (%d fragments)\n", f.FileName, f.Chunks)
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func makeOverviewHandler(d mcpDeps) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		project := req.GetString("project", "")
		if project == "" {
			return mcp.NewToolResultError("project is required"), nil
		}
		text, err := d.projects.GetMeta(ctx, project, store.MetaOverview)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("read overview failed: %v", err)), nil
		}
		if text == "" {
			return mcp.NewToolResultText("No overview available yet. Index the repository to generate one."), nil
		}
		return mcp.NewToolResultText(text), nil
	}
}

// --- Formatting helpers ---

func formatSearchResults(query string, results []store.SearchResult) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for query: %q", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search results for %q (%d fragments)\n\n", query, len(results))

	for i, r := range results {
		fmt.Fprintf(&sb, "### Result %d: `%s`\n\n", i+1, r.FileName)
		fmt.Fprintf(&sb, "**Lines:** %d-%d  \n**Kind:** %s  \n**Relevance:** %.1f%%\n\n",
			r.StartLine+1, r.EndLine+1, r.ChunkType, r.Similarity*100)
		if r.Summary != "" {
			fmt.Fprintf(&sb, "%s\n\n", r.Summary)
		}
		fmt.Fprintf(&sb, "```\n%s\n```\n\n", r.SourceCode)
	}
	return sb.String()
}

func formatJob(j index.Job) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Job %s (%s, project %s): %s", j.ID, j.RepoRef, j.ProjectID, j.State)
	if j.Phase != "" && j.State == index.JobRunning {
		fmt.Fprintf(&sb, "\nPhase: %s", j.Phase)
		if j.Total > 0 {
			fmt.Fprintf(&sb, " %d/%d", j.Processed, j.Total)
		}
	}
	if r := j.Result; r != nil {
		fmt.Fprintf(&sb, "\nIndexed %d of %d fragments from %d files (%d failed)",
			r.SuccessCount, r.Fragments, r.Files, r.ErrorCount)
	}
	if j.Error != "" {
		fmt.Fprintf(&sb, "\nError: %s", j.Error)
	}
	return sb.String()
}
