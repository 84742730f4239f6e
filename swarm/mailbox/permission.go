// ABOUTME: Permission-request IPC: one JSON file per outstanding request,
// ABOUTME: a blocking poll for the requester, and a list/update path for
// ABOUTME: the approver (Architect's RequestMonitor middleware or TAP bridge).

package mailbox

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
)

// RequestStatus is a permission request's lifecycle state.
type RequestStatus string

const (
	RequestPending  RequestStatus = "PENDING"
	RequestApproved RequestStatus = "APPROVED"
	RequestDenied   RequestStatus = "DENIED"
	RequestTimeout  RequestStatus = "TIMEOUT"
)

// Request is one permission-request file.
type Request struct {
	ID           string        `json:"id"`
	AgentName    string        `json:"agent_name"`
	Type         string        `json:"type"`
	Content      string        `json:"content"`
	Reason       string        `json:"reason"`
	Status       RequestStatus `json:"status"`
	Timestamp    float64       `json:"timestamp"`
	ResponseTime float64       `json:"response_time,omitempty"`
}

// RequestStore is bound to the requests/ directory of one blackboard.
type RequestStore struct {
	Dir string
}

// OpenRequests ensures the requests directory exists.
func OpenRequests(dir string) (*RequestStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &RequestStore{Dir: dir}, nil
}

func (s *RequestStore) path(id string) string {
	return filepath.Join(s.Dir, id+".json")
}

// Create writes a new PENDING request file and returns its id.
func (s *RequestStore) Create(agentName, reqType, content, reason string) (string, error) {
	id := uuid.New().String()
	req := Request{
		ID:        id,
		AgentName: agentName,
		Type:      reqType,
		Content:   content,
		Reason:    reason,
		Status:    RequestPending,
		Timestamp: nowUnix(),
	}
	data, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(s.path(id), data, 0o644); err != nil {
		return "", err
	}
	return id, nil
}

// defaultPermissionTimeout matches spec §4.4's default deny-on-timeout window.
const defaultPermissionTimeout = 120 * time.Second

const pollInterval = time.Second

// WaitForResponse polls id's request file until its status leaves PENDING,
// ctx is canceled, or timeout elapses (yielding RequestTimeout, a default
// deny). A missing file mid-poll is reported as an error.
func (s *RequestStore) WaitForResponse(ctx context.Context, id string, timeout time.Duration) (RequestStatus, error) {
	if timeout <= 0 {
		timeout = defaultPermissionTimeout
	}
	deadline := time.Now().Add(timeout)
	path := s.path(id)
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
		data, err := os.ReadFile(path)
		if err == nil {
			var req Request
			if json.Unmarshal(data, &req) == nil && req.Status != RequestPending {
				return req.Status, nil
			}
		} else if !os.IsNotExist(err) {
			return "", err
		} else {
			return "", fmt.Errorf("permission request %s: file missing", id)
		}
		if time.Now().After(deadline) {
			return RequestTimeout, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// ListPending returns every PENDING request sorted by timestamp, oldest
// first, for the Architect's per-turn approval sweep.
func (s *RequestStore) ListPending() ([]Request, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var pending []Request
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.Dir, e.Name()))
		if err != nil {
			continue
		}
		var req Request
		if json.Unmarshal(data, &req) != nil {
			continue
		}
		if req.Status == RequestPending {
			pending = append(pending, req)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Timestamp < pending[j].Timestamp })
	return pending, nil
}

// UpdateStatus sets id's status (APPROVED/DENIED) and stamps response_time.
func (s *RequestStore) UpdateStatus(id string, status RequestStatus) error {
	path := s.path(id)
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}
	req.Status = status
	req.ResponseTime = nowUnix()
	out, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}
