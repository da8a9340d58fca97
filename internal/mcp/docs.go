package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverInstructions = `reelwatch watches AI video studio projects and drives their generation.

Core concepts:
- Project: a studio project made of ordered Frames, plus Assets once a final video exists.
- Frame: one clip. Status is pending, generating, completed or failed.
- Watch: reelwatch polls a watched project while work is active and stays quiet when it is idle.
- Command: generate_all, generate_frame or combine_project. One command runs per project at a time.
- Final: the combined video. It is announced once each time it appears.

Default workflow:
1) project_status(project_id) to load the project. This also starts a watch.
2) generate_all to render every pending or failed frame; poll project_status to follow progress.
3) generate_frame(frame_id) to retry a failed frame.
4) combine_project once every frame is completed. A second call while combining joins the first.
5) recent_activity to read what happened while you were away.

Errors carry a code and a recovery_hint. PRECONDITION_FAILED means the command was refused
locally and nothing was sent to the studio.

Docs:
- reelwatch://docs/index
- reelwatch://docs/lifecycle
- reelwatch://docs/errors
`

type docResource struct {
	URI         string
	Name        string
	Title       string
	Description string
	Content     string
}

var docResources = []docResource{
	{
		URI:         "reelwatch://docs/index",
		Name:        "docs_index",
		Title:       "reelwatch docs index",
		Description: "Entry point: tools, what they return and which doc to read next.",
		Content: `# reelwatch: Agent Docs Index

## Tools

- ` + "`watch_project`" + ` / ` + "`unwatch_project`" + ` / ` + "`list_watches`" + ` manage watches.
- ` + "`project_status`" + ` returns the derived view. Pass ` + "`refresh=true`" + ` to fetch before answering.
- ` + "`generate_all`" + `, ` + "`generate_frame`" + `, ` + "`combine_project`" + ` send commands.
- ` + "`recent_activity`" + ` reads the journal.

Commands on an unwatched project start a watch first.

## Docs

- ` + "`reelwatch://docs/lifecycle`" + ` covers project and frame states, polling cadence and the final video.
- ` + "`reelwatch://docs/errors`" + ` lists error codes.
`,
	},
	{
		URI:         "reelwatch://docs/lifecycle",
		Name:        "docs_lifecycle",
		Title:       "Project lifecycle",
		Description: "Project and frame states, in-flight commands, polling cadence and final video announcements.",
		Content: `# Project lifecycle

## States

Project status: ` + "`queued | generating | clips_ready | combining | completed | failed`" + `.
Frame status: ` + "`pending | generating | completed | failed`" + `.

A project is **fully generated** when it has at least one frame and every frame is completed.

## In-flight command

At most one command is outstanding per project. It is cleared when the studio shows the work
finished, or right away when the command failed or had nothing to do. If a few polls after
the command returned still show no sign of the work (the studio failed or dropped it), the
command is cleared so it can be retried.

- ` + "`generate_all`" + ` needs a pending or failed frame.
- ` + "`generate_frame`" + ` refuses a frame that is already generating, or while generate_all is outstanding.
- ` + "`combine_project`" + ` needs a fully generated project. A known final video is returned without a request.

## Polling

Polling runs only while the project is active (generating or combining, or a command is outstanding).
The interval backs off 2s, 5s, 10s, 30s and resets when a project becomes active again.
Failed polls are recorded and polling continues. A malformed snapshot halts polling until an
explicit refresh succeeds.

## Final video

The final video is announced once per appearance. When persistence is enabled it is announced
once per asset across restarts; ` + "`project_status`" + ` shows it as ` + "`announced_final`" + `.
`,
	},
	{
		URI:         "reelwatch://docs/errors",
		Name:        "docs_errors",
		Title:       "Error codes",
		Description: "Tool error codes and how to recover.",
		Content: `# Error codes

| code | meaning |
| --- | --- |
| PRECONDITION_FAILED | refused locally, nothing sent |
| FRAME_NOT_FOUND | frame is not part of the project |
| NOT_WATCHED | unwatch_project on an unknown project |
| WATCH_STOPPED | the watch was stopped mid call |
| INVALID_ID | ids must be UUIDs |
| MALFORMED_SNAPSHOT | the studio sent data that cannot be trusted; polling is halted |
| PROJECT_NOT_FOUND | the studio has no such project |
| STUDIO_ERROR | the studio answered with an error status |
| STUDIO_UNREACHABLE | no response from the studio |
| INVALID_INPUT | bad filter for recent_activity |

A command that the studio accepted with nothing to do is not an error: the result has ` + "`noop: true`" + `.
`,
	},
}

func registerDocResources(server *sdkmcp.Server) {
	for _, doc := range docResources {
		server.AddResource(&sdkmcp.Resource{
			URI:         doc.URI,
			Name:        doc.Name,
			Title:       doc.Title,
			Description: doc.Description,
			MIMEType:    "text/markdown",
			Size:        int64(len(doc.Content)),
		}, func(_ context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
			uri := doc.URI
			if req != nil && req.Params != nil && req.Params.URI != "" {
				uri = req.Params.URI
			}
			return &sdkmcp.ReadResourceResult{
				Contents: []*sdkmcp.ResourceContents{{
					URI:      uri,
					MIMEType: "text/markdown",
					Text:     doc.Content,
				}},
			}, nil
		})
	}
}
