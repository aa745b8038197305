package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"repolens/internal/fetcher"
	"repolens/internal/index"
	"repolens/internal/rag"
)

type CheckHandler struct{}

func NewCheckHandler() *CheckHandler {
	return &CheckHandler{}
}

func (h CheckHandler) HandleHealthy(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"result": "ok"})
}

type IndexHandler struct {
	estimator    Estimator
	jobs         Jobs
	defaultToken string
}

func NewIndexHandler(e Estimator, j Jobs, defaultToken string) *IndexHandler {
	return &IndexHandler{estimator: e, jobs: j, defaultToken: defaultToken}
}

func (h *IndexHandler) credentials(token string) fetcher.Credentials {
	if token == "" {
		token = h.defaultToken
	}
	return fetcher.Credentials{Token: token}
}

func (h *IndexHandler) HandleEstimate(c *fiber.Ctx) error {
	var params EstimateParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if err := validateStruct(&params); err != nil {
		return err
	}

	n, err := h.estimator.EstimateCost(c.UserContext(), params.Repo, h.credentials(params.Token))
	if err != nil {
		return err
	}
	return c.JSON(EstimateResponse{Repo: params.Repo, Fragments: n})
}

func (h *IndexHandler) HandleIndex(c *fiber.Ctx) error {
	projectID := c.Params("id")
	var params IndexParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if err := validateStruct(&params); err != nil {
		return err
	}

	id, err := h.jobs.Submit(index.Request{
		ProjectID:   projectID,
		RepoRef:     params.Repo,
		Credentials: h.credentials(params.Token),
		Replace:     params.Replace,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"job_id": id})
}

func (h *IndexHandler) HandleJob(c *fiber.Ctx) error {
	id := c.Params("id")
	job, err := h.jobs.Status(id)
	if errors.Is(err, index.ErrJobNotFound) {
		return ErrNotFound(id, "job")
	}
	if err != nil {
		return err
	}
	return c.JSON(toJobResponse(job))
}

type ProjectHandler struct {
	searcher Searcher
	answerer Answerer
	projects Projects
	logger   *slog.Logger
}

func NewProjectHandler(s Searcher, a Answerer, p Projects, logger *slog.Logger) *ProjectHandler {
	return &ProjectHandler{searcher: s, answerer: a, projects: p, logger: logger}
}

func (h *ProjectHandler) question(c *fiber.Ctx) (string, error) {
	var params QuestionParams
	if c.BodyParser(&params) != nil {
		return "", ErrBadRequest()
	}
	params.Question = strings.TrimSpace(params.Question)
	if err := validateStruct(&params); err != nil {
		return "", err
	}
	return params.Question, nil
}

func (h *ProjectHandler) HandleSearch(c *fiber.Ctx) error {
	q, err := h.question(c)
	if err != nil {
		return err
	}
	results, err := h.searcher.Retrieve(c.UserContext(), q, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"results": toCitations(results, true)})
}

// HandleAsk streams the answer as NDJSON: one citations event, then token
// events, then a done or error event. A client disconnect closes the
// generation stream.
func (h *ProjectHandler) HandleAsk(c *fiber.Ctx) error {
	q, err := h.question(c)
	if err != nil {
		return err
	}
	projectID := c.Params("id")

	// The body is written after the handler returns, so generation must
	// not be bound to the request context.
	ans, err := h.answerer.Answer(context.WithoutCancel(c.UserContext()), q, projectID)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, "application/x-ndjson")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer ans.Stream.Close()
		enc := json.NewEncoder(w)
		send := func(ev StreamEvent) bool {
			if err := enc.Encode(ev); err != nil {
				return false
			}
			return w.Flush() == nil
		}

		if !send(StreamEvent{Type: EventCitations, Citations: toCitations(ans.Cited, false)}) {
			return
		}
		for {
			tok, err := ans.Stream.Recv()
			if errors.Is(err, io.EOF) {
				send(StreamEvent{Type: EventDone, ContextTokens: ans.ContextTokens})
				return
			}
			if err != nil {
				ev := StreamEvent{Type: EventError, Error: err.Error()}
				var genErr *rag.GenerationError
				if errors.As(err, &genErr) {
					ev.Delivered = genErr.Delivered
				}
				h.logger.Warn("answer stream failed", "project", projectID, "error", err)
				send(ev)
				return
			}
			if !send(StreamEvent{Type: EventToken, Token: tok}) {
				h.logger.Info("client went away, stopping generation", "project", projectID)
				return
			}
		}
	}))
	return nil
}

func (h *ProjectHandler) HandleDelete(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.projects.DeleteProject(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
