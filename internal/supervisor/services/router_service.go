// Coursetrace - Learner Activity Analytics for Online Learning Platforms
// Copyright 2026 Coursetrace Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursetrace/coursetrace

package services

import (
	"context"

	"github.com/coursetrace/coursetrace/internal/queue"
)

// RouterService runs the queue router under supervision. The router
// already blocks on a context, so the adaptation is direct.
type RouterService struct {
	router *queue.Router
}

// NewRouterService wraps the queue router as a supervised service.
func NewRouterService(router *queue.Router) *RouterService {
	return &RouterService{router: router}
}

// Serve implements suture.Service.
func (s *RouterService) Serve(ctx context.Context) error {
	return s.router.Run(ctx)
}

// String identifies the service in suture logs.
func (s *RouterService) String() string {
	return "queue-router"
}
