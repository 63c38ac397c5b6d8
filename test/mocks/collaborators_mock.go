// Package mocks provides in-memory fakes for the engine's external
// collaborators, shared by the integration tests.
package mocks

import (
	"context"
	"fmt"
	"sync"

	"citybrief/internal/core"
	"citybrief/internal/email"
	"citybrief/internal/ingest"
	"citybrief/internal/llm"
)

// MockScraper implements ingest.Scraper over a fixed record set.
type MockScraper struct {
	SourceName string
	Records    []ingest.RawRecord
	Err        error
	FetchFunc  func(ctx context.Context) ([]ingest.RawRecord, error)
}

func (m *MockScraper) Name() string {
	return m.SourceName
}

func (m *MockScraper) Fetch(ctx context.Context) ([]ingest.RawRecord, error) {
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Records, nil
}

// MockSender implements digest.Sender, recording every delivery.
type MockSender struct {
	mu    sync.Mutex
	Mails []MockMail
	Err   error
}

// MockMail is one recorded delivery.
type MockMail struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

func (m *MockSender) Send(ctx context.Context, to, subject, htmlBody, textBody string) (*email.SendResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	m.Mails = append(m.Mails, MockMail{To: to, Subject: subject, HTML: htmlBody, Text: textBody})
	return &email.SendResult{ID: fmt.Sprintf("mock-%d", len(m.Mails)), Success: true}, nil
}

// Sent returns a snapshot of the recorded deliveries.
func (m *MockSender) Sent() []MockMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockMail(nil), m.Mails...)
}

// MockPlanner implements digest.Planner.
type MockPlanner struct {
	Err      error
	PlanFunc func(slot core.Slot, items []core.ContentItem) *llm.DigestPlan
}

func (m *MockPlanner) GenerateDigestPlan(ctx context.Context, slot core.Slot, items []core.ContentItem) (*llm.DigestPlan, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if m.PlanFunc != nil {
		return m.PlanFunc(slot, items), nil
	}
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	return &llm.DigestPlan{
		Subject:  "Mock subject",
		Sections: []llm.PlanSection{{Module: string(core.ModuleGeneral), Lead: "Mock lead.", ItemIDs: ids}},
	}, nil
}

// MockLocker implements digest.Locker with a process-local mutex table.
type MockLocker struct {
	mu    sync.Mutex
	held  map[string]string
	Deny  bool // simulate another process holding every lock
	Calls []string
}

func (m *MockLocker) Acquire(ctx context.Context, name string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, "acquire:"+name)
	if m.Deny {
		return "", false, nil
	}
	if m.held == nil {
		m.held = make(map[string]string)
	}
	if _, taken := m.held[name]; taken {
		return "", false, nil
	}
	token := fmt.Sprintf("token-%d", len(m.Calls))
	m.held[name] = token
	return token, true, nil
}

func (m *MockLocker) Release(ctx context.Context, name, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, "release:"+name)
	if m.held[name] == token {
		delete(m.held, name)
	}
	return nil
}
