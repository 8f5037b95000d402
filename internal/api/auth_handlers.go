package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/shelfmark/shelfmark-server/internal/api/dto"
	"github.com/shelfmark/shelfmark-server/internal/service"
)

func (s *Server) registerAuthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "signup",
		Method:        http.MethodPost,
		Path:          "/api/auth/signup",
		Summary:       "Create an account",
		Description:   "Registers a user and returns a bearer token valid for one hour",
		Tags:          []string{"Authentication"},
		DefaultStatus: http.StatusCreated,
		Middlewares:   huma.Middlewares{s.rateLimitAuth},
	}, s.handleSignup)

	huma.Register(s.api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/api/auth/login",
		Summary:     "User login",
		Description: "Checks credentials and returns a bearer token valid for one hour",
		Tags:        []string{"Authentication"},
		Middlewares: huma.Middlewares{s.rateLimitAuth},
	}, s.handleLogin)
}

func (s *Server) handleSignup(ctx context.Context, input *dto.SignupInput) (*dto.SignupOutput, error) {
	resp, err := s.services.Auth.Register(ctx, service.SignupRequest{
		Email:    input.Body.Email,
		Password: input.Body.Password,
	})
	if err != nil {
		return nil, err
	}

	return &dto.SignupOutput{
		Body: dto.SignupResponse{
			Message: "User created",
			Token:   resp.Token,
			UserID:  resp.UserID,
		},
	}, nil
}

func (s *Server) handleLogin(ctx context.Context, input *dto.LoginInput) (*dto.LoginOutput, error) {
	resp, err := s.services.Auth.Login(ctx, service.LoginRequest{
		Email:    input.Body.Email,
		Password: input.Body.Password,
	})
	if err != nil {
		return nil, err
	}

	return &dto.LoginOutput{
		Body: dto.LoginResponse{
			Token:  resp.Token,
			UserID: resp.UserID,
		},
	}, nil
}
