package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/haivivi/voicegate/pkg/audio/pcm"
	"github.com/haivivi/voicegate/pkg/audio/wav"
	"github.com/haivivi/voicegate/pkg/profile"
	"github.com/haivivi/voicegate/pkg/verify"
)

// UsersResponse lists enrolled users.
type UsersResponse struct {
	Users []string `json:"users"`
	Model string   `json:"model"`
}

func (s *Server) listUsers(c echo.Context) error {
	ctx := c.Request().Context()
	users := []string{}
	for id, err := range s.profiles.List(ctx) {
		if err != nil {
			return err
		}
		users = append(users, id)
	}
	return c.JSON(http.StatusOK, UsersResponse{Users: users, Model: s.profiles.Model()})
}

func (s *Server) getUser(c echo.Context) error {
	p, err := s.profiles.Load(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p.Summary(s.profiles.Model()))
}

func (s *Server) deleteUser(c echo.Context) error {
	if err := s.profiles.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) enroll(c echo.Context) error {
	return s.writeProfile(c, http.StatusCreated, s.enroller.Enroll)
}

func (s *Server) retrain(c echo.Context) error {
	return s.writeProfile(c, http.StatusOK, s.enroller.Retrain)
}

type enrollFunc func(ctx context.Context, userID string, samples []*pcm.Segment) (*profile.Profile, error)

func (s *Server) writeProfile(c echo.Context, status int, fn enrollFunc) error {
	userID := c.Param("id")
	if err := profile.ValidateUserID(userID); err != nil {
		return err
	}
	form, err := c.MultipartForm()
	if err != nil {
		return badRequest("bad_request", fmt.Errorf("expected multipart form: %w", err))
	}
	files := form.File["sample"]
	if len(files) == 0 {
		return badRequest("bad_request", errors.New(`no "sample" files in form`))
	}
	samples := make([]*pcm.Segment, len(files))
	for i, fh := range files {
		seg, err := s.loadFile(fh)
		if err != nil {
			return badRequest("bad_audio", fmt.Errorf("sample %d (%s): %w", i, fh.Filename, err))
		}
		samples[i] = seg
	}
	p, err := fn(c.Request().Context(), userID, samples)
	if err != nil {
		return err
	}
	return c.JSON(status, p.Summary(s.profiles.Model()))
}

func (s *Server) verify(c echo.Context) error {
	userID := c.Param("id")
	if err := profile.ValidateUserID(userID); err != nil {
		return err
	}
	seg, challenge, err := s.readVerifyAudio(c)
	if err != nil {
		return err
	}
	rep, err := s.runVerify(c.Request().Context(), userID, seg, challenge)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rep)
}

// runVerify verifies seg and attaches a token to accepted attempts.
func (s *Server) runVerify(ctx context.Context, userID string, seg *pcm.Segment, challenge string) (verify.Report, error) {
	attemptID := uuid.NewString()
	if challenge != "" {
		s.logger.InfoContext(ctx, "verification challenge", "attempt_id", attemptID, "user_id", userID, "challenge", challenge)
	}
	res, err := s.verifier.Verify(verify.WithAttemptID(ctx, attemptID), userID, seg)
	if err != nil {
		return verify.Report{}, err
	}
	rep := verify.NewReport(res, attemptID)
	if res.Accepted && s.issuer != nil {
		tok, exp, err := s.issuer.Issue(userID, attemptID, res.Similarity, res.FakeConfidence)
		if err != nil {
			return verify.Report{}, err
		}
		rep.Token = tok
		rep.TokenExpiresAt = &exp
	}
	return rep, nil
}

// readVerifyAudio accepts either a multipart form with an "audio" file or
// a raw WAV body.
func (s *Server) readVerifyAudio(c echo.Context) (*pcm.Segment, string, error) {
	req := c.Request()
	if strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		fh, err := c.FormFile("audio")
		if err != nil {
			return nil, "", badRequest("bad_request", fmt.Errorf(`missing "audio" file: %w`, err))
		}
		seg, err := s.loadFile(fh)
		if err != nil {
			return nil, "", badRequest("bad_audio", err)
		}
		return seg, c.FormValue("challenge"), nil
	}
	data, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, "", badRequest("bad_request", err)
	}
	if len(data) == 0 {
		return nil, "", badRequest("bad_audio", pcm.ErrEmpty)
	}
	seg, err := wav.Load(bytes.NewReader(data), s.sampleRate)
	if err != nil {
		return nil, "", badRequest("bad_audio", err)
	}
	return seg, c.QueryParam("challenge"), nil
}

func (s *Server) loadFile(fh *multipart.FileHeader) (*pcm.Segment, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return wav.Load(f, s.sampleRate)
}
