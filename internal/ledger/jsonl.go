package ledger

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"liquiditybootstrap/internal/model"
)

// JsonlLedger keeps distribution records in a JSONL file, one record per
// line with later lines superseding earlier ones. Meant for development and
// single-process deployments; the Postgres ledger is the production path.
type JsonlLedger struct {
	path string
	mu   sync.Mutex
}

func NewJsonlLedger(path string) *JsonlLedger {
	return &JsonlLedger{path: path}
}

// GetRecord scans the file for the latest record with the agent ID.
func (l *JsonlLedger) GetRecord(_ context.Context, agentID string) (model.DistributionRecord, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	file, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.DistributionRecord{}, false, nil
		}
		return model.DistributionRecord{}, false, fmt.Errorf("open ledger file: %w", err)
	}
	defer file.Close()

	var (
		latest model.DistributionRecord
		found  bool
	)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var record model.DistributionRecord
		if err := json.Unmarshal(line, &record); err != nil {
			return model.DistributionRecord{}, false, fmt.Errorf("parse ledger line: %w", err)
		}
		if record.AgentID == agentID {
			latest = record
			found = true
		}
	}
	if err := scanner.Err(); err != nil {
		return model.DistributionRecord{}, false, fmt.Errorf("read ledger file: %w", err)
	}

	return latest, found, nil
}

// SetLiquidityAdded appends the completed record. The write goes through a
// temp-free append; the file is the source of truth and the latest line per
// agent wins on read.
func (l *JsonlLedger) SetLiquidityAdded(_ context.Context, record model.DistributionRecord) error {
	if record.AgentID == "" {
		return fmt.Errorf("agent id is required")
	}
	record.LiquidityAdded = true

	dir := filepath.Dir(l.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create ledger dir: %w", err)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger file: %w", err)
	}
	defer file.Close()

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	writer := bufio.NewWriter(file)
	if _, err := writer.Write(line); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	if err := writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush ledger file: %w", err)
	}

	return nil
}
