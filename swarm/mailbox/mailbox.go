// ABOUTME: Per-agent mailbox: an ordered JSON array of message envelopes,
// ABOUTME: used for parent/user interventions into a running agent's loop.

// Package mailbox implements the blackboard's per-agent message queues and
// permission-request files (spec §3/§4.4).
package mailbox

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nanoagent/swarmcore/swarm/filelock"
)

const lockTimeout = 5 * time.Second

// Status is a mailbox message's read state.
type Status string

const (
	Unread Status = "unread"
	Read   Status = "read"
)

// Message is one mailbox envelope.
type Message struct {
	Timestamp float64        `json:"timestamp"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Status    Status         `json:"status"`
	ReadTime  float64        `json:"read_time,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Store is bound to the mailboxes/ directory of one blackboard.
type Store struct {
	Dir string
}

// Open ensures the mailboxes directory exists.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{Dir: dir}, nil
}

func (s *Store) path(agent string) string {
	return filepath.Join(s.Dir, agent+".json")
}

func nowUnix() float64 { return float64(time.Now().UnixNano()) / 1e9 }

// Send appends one message to agent's mailbox under exclusive lock.
func (s *Store) Send(agent, role, content string, metadata map[string]any) error {
	path := s.path(agent)
	return filelock.WithLock(path, filelock.Exclusive, os.O_RDWR|os.O_CREATE, 0o644, lockTimeout, func(f *os.File) error {
		msgs, err := readMessages(f)
		if err != nil {
			return err
		}
		msgs = append(msgs, Message{
			Timestamp: nowUnix(),
			Role:      role,
			Content:   content,
			Status:    Unread,
			Metadata:  metadata,
		})
		return writeMessages(f, msgs)
	})
}

// DrainUnread returns every unread message for agent, marking each read in
// place under one exclusive-lock window, used by the MailboxMiddleware to
// inject pending interventions into a session before the next LLM call.
func (s *Store) DrainUnread(agent string) ([]Message, error) {
	path := s.path(agent)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	var drained []Message
	err := filelock.WithLock(path, filelock.Exclusive, os.O_RDWR, 0o644, lockTimeout, func(f *os.File) error {
		msgs, err := readMessages(f)
		if err != nil {
			return err
		}
		changed := false
		for i := range msgs {
			if msgs[i].Status == Unread {
				drained = append(drained, msgs[i])
				msgs[i].Status = Read
				msgs[i].ReadTime = nowUnix()
				changed = true
			}
		}
		if !changed {
			return nil
		}
		return writeMessages(f, msgs)
	})
	return drained, err
}

func readMessages(f *os.File) ([]Message, error) {
	data, err := os.ReadFile(f.Name())
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		// Legacy single-message format: one bare object instead of a list.
		var single Message
		if err2 := json.Unmarshal(data, &single); err2 == nil {
			return []Message{single}, nil
		}
		return nil, fmt.Errorf("mailbox: corrupt file: %w", err)
	}
	return msgs, nil
}

func writeMessages(f *os.File, msgs []Message) error {
	out, err := json.MarshalIndent(msgs, "", "  ")
	if err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	if _, err := f.Write(out); err != nil {
		return err
	}
	return f.Truncate(int64(len(out)))
}
