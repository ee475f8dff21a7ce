package conversation

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// JSONL record discriminators.
const (
	recordHeader = "header"
	recordTurn   = "turn"
	recordFooter = "footer"
)

// jsonlRecord wraps one JSONL line with type discrimination.
type jsonlRecord struct {
	RecordType string `json:"_type"`

	// Header fields.
	ID        string    `json:"id,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`

	// Turn fields.
	*Turn `json:",omitempty"`

	// Footer fields.
	SessionID string    `json:"session_id,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// FileStore persists conversations as JSONL files, one per
// conversation id.
type FileStore struct {
	dir string
}

// NewFileStore creates the store directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create conversation dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Save writes the whole conversation: header, one line per turn,
// footer carrying the provider session id.
func (s *FileStore) Save(c *Conversation) error {
	path := filepath.Join(s.dir, c.ID+".jsonl")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create conversation file: %w", err)
	}
	defer f.Close()

	if err := writeLine(f, jsonlRecord{
		RecordType: recordHeader,
		ID:         c.ID,
		CreatedAt:  c.CreatedAt,
	}); err != nil {
		return err
	}

	for _, turn := range c.Turns() {
		t := turn
		if err := writeLine(f, jsonlRecord{RecordType: recordTurn, Turn: &t}); err != nil {
			return err
		}
	}

	return writeLine(f, jsonlRecord{
		RecordType: recordFooter,
		SessionID:  c.SessionID(),
		UpdatedAt:  time.Now().UTC(),
	})
}

// Load reads a conversation back, restoring the sequence counter from
// the last turn.
func (s *FileStore) Load(id string) (*Conversation, error) {
	path := filepath.Join(s.dir, id+".jsonl")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open conversation file: %w", err)
	}
	defer f.Close()

	c := &Conversation{}
	var turns []Turn
	var sessionID string

	// bufio.Reader instead of Scanner: no line length limit.
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			var record jsonlRecord
			if jsonErr := json.Unmarshal(bytes.TrimSpace(line), &record); jsonErr != nil {
				return nil, fmt.Errorf("parse conversation line: %w", jsonErr)
			}
			switch record.RecordType {
			case recordHeader:
				c.ID = record.ID
				c.CreatedAt = record.CreatedAt
			case recordTurn:
				if record.Turn != nil {
					turns = append(turns, *record.Turn)
				}
			case recordFooter:
				sessionID = record.SessionID
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read conversation file: %w", err)
		}
	}

	c.restore(turns, sessionID)
	return c, nil
}

// List returns the ids of all stored conversations.
func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if filepath.Ext(name) == ".jsonl" {
			ids = append(ids, name[:len(name)-len(".jsonl")])
		}
	}
	return ids, nil
}

func writeLine(f *os.File, record jsonlRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode conversation record: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write conversation record: %w", err)
	}
	return nil
}
