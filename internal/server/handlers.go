package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/danielgtaylor/huma/v2"
	"github.com/oszuidwest/zwfm-videoencoder/internal/supervisor"
	"github.com/oszuidwest/zwfm-videoencoder/internal/types"
	"github.com/oszuidwest/zwfm-videoencoder/internal/util"
)

// Request limits.
const (
	maxURLLength = 2048
	maxOutputs   = 10
)

// EncoderParams are the start and restart parameters.
type EncoderParams struct {
	InputURL string               `json:"inputUrl" required:"false" doc:"Input URI or device path, passed to the encoder unchanged"`
	Outputs  []types.OutputTarget `json:"outputs" required:"false" doc:"Output targets; only the first one is used"`
}

// validate checks request limits. Semantic checks are left to the supervisor.
func (p EncoderParams) validate() error {
	if v := util.ValidateMaxLength("inputUrl", p.InputURL, maxURLLength); v != nil {
		return v
	}
	if len(p.Outputs) > maxOutputs {
		return &util.ValidationError{Field: "outputs", Message: fmt.Sprintf("at most %d outputs are accepted", maxOutputs)}
	}
	for i, out := range p.Outputs {
		if v := util.ValidateMaxLength(fmt.Sprintf("outputs[%d].url", i), out.URL, maxURLLength); v != nil {
			return v
		}
	}
	return nil
}

// EncoderParamsInput is the request for start and restart.
type EncoderParamsInput struct {
	Body EncoderParams
}

// ActionResponse is the result of a lifecycle operation.
type ActionResponse struct {
	Success bool         `json:"success"`
	Status  types.Status `json:"status" enum:"stopped,running,error"`
	Error   string       `json:"error,omitempty"`
}

// ActionOutput carries an ActionResponse and its HTTP status.
type ActionOutput struct {
	Status int
	Body   ActionResponse
}

// StatusOutput is the response of the status endpoint.
type StatusOutput struct {
	Body struct {
		Status types.Status `json:"status" enum:"stopped,running,error"`
	}
}

// LogsOutput is the response of the logs endpoint.
type LogsOutput struct {
	Body struct {
		Logs []string `json:"logs" doc:"Most recent log lines, oldest first"`
	}
}

// InfoOutput is the response of the info endpoint.
type InfoOutput struct {
	Body types.EncoderInfo
}

// VersionOutput is the response of the version endpoint.
type VersionOutput struct {
	Body types.VersionInfo
}

// NotificationTestInput selects the notification channel to test.
type NotificationTestInput struct {
	Kind string `path:"kind" enum:"webhook,email,log" doc:"Notification channel"`
}

// NotificationTestOutput is the result of a notification test.
type NotificationTestOutput struct {
	Status int
	Body   struct {
		Success bool   `json:"success"`
		Error   string `json:"error,omitempty"`
	}
}

func (s *Server) registerRoutes() {
	tags := []string{"Encoder"}

	huma.Register(s.api, huma.Operation{
		OperationID: "startEncoder",
		Method:      http.MethodPost,
		Path:        "/api/encoder/start",
		Summary:     "Start the encoder",
		Tags:        tags,
	}, s.StartEncoder)

	huma.Register(s.api, huma.Operation{
		OperationID: "stopEncoder",
		Method:      http.MethodPost,
		Path:        "/api/encoder/stop",
		Summary:     "Stop the encoder",
		Tags:        tags,
	}, s.StopEncoder)

	huma.Register(s.api, huma.Operation{
		OperationID: "restartEncoder",
		Method:      http.MethodPost,
		Path:        "/api/encoder/restart",
		Summary:     "Restart the encoder with new parameters",
		Tags:        tags,
	}, s.RestartEncoder)

	huma.Register(s.api, huma.Operation{
		OperationID: "getEncoderStatus",
		Method:      http.MethodGet,
		Path:        "/api/encoder/status",
		Summary:     "Get the encoder status",
		Tags:        tags,
	}, s.GetStatus)

	huma.Register(s.api, huma.Operation{
		OperationID: "getEncoderLogs",
		Method:      http.MethodGet,
		Path:        "/api/encoder/logs",
		Summary:     "Get recent encoder log lines",
		Tags:        tags,
	}, s.GetLogs)

	huma.Register(s.api, huma.Operation{
		OperationID: "getEncoderInfo",
		Method:      http.MethodGet,
		Path:        "/api/encoder/info",
		Summary:     "Get detailed encoder state",
		Tags:        tags,
	}, s.GetInfo)

	huma.Register(s.api, huma.Operation{
		OperationID: "getVersion",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Get build and release information",
		Tags:        []string{"System"},
	}, s.GetVersion)

	huma.Register(s.api, huma.Operation{
		OperationID: "testNotification",
		Method:      http.MethodPost,
		Path:        "/api/notifications/test/{kind}",
		Summary:     "Send a test notification",
		Tags:        []string{"Notifications"},
	}, s.TestNotification)
}

// StartEncoder launches the encoder.
func (s *Server) StartEncoder(_ context.Context, input *EncoderParamsInput) (*ActionOutput, error) {
	err := input.Body.validate()
	if err == nil {
		err = s.opts.Encoder.Start(input.Body.InputURL, input.Body.Outputs)
	}
	return s.actionResult("start", err), nil
}

// StopEncoder stops the encoder. It always succeeds.
func (s *Server) StopEncoder(_ context.Context, _ *struct{}) (*ActionOutput, error) {
	s.opts.Encoder.Stop()
	return s.actionResult("stop", nil), nil
}

// RestartEncoder stops the encoder, waits for it to exit and starts it again.
// The request context is detached so a disconnecting client cannot leave the
// encoder stopped halfway through a restart.
func (s *Server) RestartEncoder(ctx context.Context, input *EncoderParamsInput) (*ActionOutput, error) {
	err := input.Body.validate()
	if err == nil {
		err = s.opts.Encoder.Restart(context.WithoutCancel(ctx), input.Body.InputURL, input.Body.Outputs)
	}
	return s.actionResult("restart", err), nil
}

// GetStatus returns the current lifecycle state.
func (s *Server) GetStatus(_ context.Context, _ *struct{}) (*StatusOutput, error) {
	out := &StatusOutput{}
	out.Body.Status = s.opts.Encoder.Status()
	return out, nil
}

// GetLogs returns the most recent log lines.
func (s *Server) GetLogs(_ context.Context, _ *struct{}) (*LogsOutput, error) {
	out := &LogsOutput{}
	out.Body.Logs = s.opts.Encoder.Logs()
	if out.Body.Logs == nil {
		out.Body.Logs = []string{}
	}
	return out, nil
}

// GetInfo returns a detailed snapshot with stream keys redacted.
func (s *Server) GetInfo(_ context.Context, _ *struct{}) (*InfoOutput, error) {
	return &InfoOutput{Body: redactInfo(s.opts.Encoder.Info())}, nil
}

// GetVersion returns build and release information.
func (s *Server) GetVersion(_ context.Context, _ *struct{}) (*VersionOutput, error) {
	return &VersionOutput{Body: s.opts.Version()}, nil
}

// TestNotification runs the test trigger of one notification channel.
func (s *Server) TestNotification(_ context.Context, input *NotificationTestInput) (*NotificationTestOutput, error) {
	trigger, ok := s.opts.Tests[input.Kind]
	if !ok {
		return nil, huma.Error404NotFound("unknown notification kind: " + input.Kind)
	}

	out := &NotificationTestOutput{Status: http.StatusOK}
	out.Body.Success = true
	if err := trigger(); err != nil {
		s.logger.Warn("notification test failed", "kind", input.Kind, "error", err)
		out.Status = http.StatusBadGateway
		out.Body.Success = false
		out.Body.Error = err.Error()
	}
	return out, nil
}

// actionResult maps a lifecycle result to a response.
func (s *Server) actionResult(op string, err error) *ActionOutput {
	out := &ActionOutput{
		Status: http.StatusOK,
		Body: ActionResponse{
			Success: err == nil,
			Status:  s.opts.Encoder.Status(),
		},
	}
	if err == nil {
		return out
	}

	out.Status = statusForError(err)
	out.Body.Error = err.Error()
	s.logger.Warn("encoder "+op+" failed", "error", err, "status", out.Status)
	return out
}

func statusForError(err error) int {
	var verr *util.ValidationError
	switch {
	case errors.Is(err, supervisor.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, supervisor.ErrNoOutput), errors.As(err, &verr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// redactInfo hides stream keys and credentials in URLs.
func redactInfo(info types.EncoderInfo) types.EncoderInfo {
	info.Input = util.RedactURL(info.Input)
	info.Output = util.RedactURL(info.Output)
	if len(info.Command) > 0 {
		cmd := slices.Clone(info.Command)
		for i, arg := range cmd {
			cmd[i] = util.RedactURL(arg)
		}
		info.Command = cmd
	}
	return info
}
