package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/A2AHUB/internal/types"
)

// SaveAgent upserts an agent card and rewrites its capability index
// rows in the same transaction. Re-registering an existing agent_id
// overwrites all state but preserves created_at.
func (s *Store) SaveAgent(card *types.AgentCard) error {
	capabilities, err := json.Marshal(card.Capabilities)
	if err != nil {
		return fmt.Errorf("failed to marshal capabilities: %w", err)
	}
	protocols, err := json.Marshal(card.Protocols)
	if err != nil {
		return fmt.Errorf("failed to marshal protocols: %w", err)
	}
	endpoints, err := json.Marshal(card.Endpoints)
	if err != nil {
		return fmt.Errorf("failed to marshal endpoints: %w", err)
	}
	var metadata sql.NullString
	if card.Metadata != nil {
		raw, err := json.Marshal(card.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadata = nullString(string(raw))
	}

	return s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO agents (agent_id, name, version, capabilities_json, protocols_json, endpoints_json,
				metadata_json, status, last_heartbeat, load_score, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(agent_id) DO UPDATE SET
				name=excluded.name,
				version=excluded.version,
				capabilities_json=excluded.capabilities_json,
				protocols_json=excluded.protocols_json,
				endpoints_json=excluded.endpoints_json,
				metadata_json=excluded.metadata_json,
				status=excluded.status,
				last_heartbeat=excluded.last_heartbeat,
				load_score=excluded.load_score,
				updated_at=excluded.updated_at
		`,
			card.AgentID, card.Name, card.Version, string(capabilities), string(protocols),
			string(endpoints), metadata, string(card.Status), card.LastHeartbeat,
			card.LoadScore, card.CreatedAt, card.UpdatedAt,
		)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(`DELETE FROM agent_capabilities WHERE agent_id = ?`, card.AgentID); err != nil {
			return err
		}
		for _, capability := range card.Capabilities {
			if _, err := tx.Exec(`
				INSERT INTO agent_capabilities (agent_id, capability) VALUES (?, ?)
			`, card.AgentID, capability); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateAgentLoad persists a heartbeat: load score and last_heartbeat.
func (s *Store) UpdateAgentLoad(agentID string, loadScore float64, heartbeat time.Time) error {
	_, err := s.db.Exec(`
		UPDATE agents SET load_score = ?, last_heartbeat = ?, updated_at = ?
		WHERE agent_id = ?
	`, loadScore, heartbeat, time.Now(), agentID)
	return err
}

// UpdateAgentStatus persists a status transition.
func (s *Store) UpdateAgentStatus(agentID string, status types.AgentStatus) error {
	_, err := s.db.Exec(`
		UPDATE agents SET status = ?, updated_at = ?
		WHERE agent_id = ?
	`, string(status), time.Now(), agentID)
	return err
}

// TouchAgentHeartbeat refreshes last_heartbeat without changing load.
func (s *Store) TouchAgentHeartbeat(agentID string, heartbeat time.Time) error {
	_, err := s.db.Exec(`
		UPDATE agents SET last_heartbeat = ?, updated_at = ?
		WHERE agent_id = ?
	`, heartbeat, time.Now(), agentID)
	return err
}

// DeleteAgent removes an agent and its capability rows.
func (s *Store) DeleteAgent(agentID string) error {
	return s.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM agent_capabilities WHERE agent_id = ?`, agentID); err != nil {
			return err
		}
		_, err := tx.Exec(`DELETE FROM agents WHERE agent_id = ?`, agentID)
		return err
	})
}

// ListAgents returns all persisted agent cards.
func (s *Store) ListAgents() ([]*types.AgentCard, error) {
	rows, err := s.db.Query(`
		SELECT agent_id, name, version, capabilities_json, protocols_json, endpoints_json,
			metadata_json, status, last_heartbeat, load_score, created_at, updated_at
		FROM agents
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []*types.AgentCard
	for rows.Next() {
		card, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	return cards, rows.Err()
}

func scanAgent(rows *sql.Rows) (*types.AgentCard, error) {
	var card types.AgentCard
	var capabilities, protocols, endpoints string
	var metadata sql.NullString
	var lastHeartbeat sql.NullTime
	var status string

	err := rows.Scan(
		&card.AgentID, &card.Name, &card.Version, &capabilities, &protocols,
		&endpoints, &metadata, &status, &lastHeartbeat, &card.LoadScore,
		&card.CreatedAt, &card.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	card.Status = types.AgentStatus(status)
	if lastHeartbeat.Valid {
		card.LastHeartbeat = lastHeartbeat.Time
	}
	if err := json.Unmarshal([]byte(capabilities), &card.Capabilities); err != nil {
		return nil, fmt.Errorf("agent %s: bad capabilities json: %w", card.AgentID, err)
	}
	if err := json.Unmarshal([]byte(protocols), &card.Protocols); err != nil {
		return nil, fmt.Errorf("agent %s: bad protocols json: %w", card.AgentID, err)
	}
	if err := json.Unmarshal([]byte(endpoints), &card.Endpoints); err != nil {
		return nil, fmt.Errorf("agent %s: bad endpoints json: %w", card.AgentID, err)
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &card.Metadata); err != nil {
			// Metadata is opaque; a bad blob should not hide the agent
			card.Metadata = nil
		}
	}
	return &card, nil
}
