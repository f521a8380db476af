// hubctl inspects and repairs a hub database from the command line.
// Built on the pure-Go sqlite driver so the ops tool compiles without
// cgo on any machine.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	_ "modernc.org/sqlite"
)

func main() {
	dbPath := flag.String("db", "data/hub.db", "Path to hub database")
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	switch flag.Arg(0) {
	case "agents":
		err = listAgents(db)
	case "tasks":
		err = listTasks(db, flag.Arg(1))
	case "task":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "Usage: hubctl task <task_id>")
			os.Exit(1)
		}
		err = showTask(db, flag.Arg(1))
	case "delete-agent":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "Usage: hubctl delete-agent <agent_id>")
			os.Exit(1)
		}
		err = deleteAgent(db, flag.Arg(1))
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: hubctl [-db path] <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  agents                 List registered agents")
	fmt.Println("  tasks [status]         List tasks, optionally filtered by status")
	fmt.Println("  task <task_id>         Show one task in full")
	fmt.Println("  delete-agent <id>      Remove an agent and its capability rows")
}

func listAgents(db *sql.DB) error {
	rows, err := db.Query(`
		SELECT agent_id, name, status, load_score, last_heartbeat
		FROM agents ORDER BY agent_id
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "AGENT\tNAME\tSTATUS\tLOAD\tLAST HEARTBEAT")
	count := 0
	for rows.Next() {
		var agentID, name, status string
		var load float64
		var heartbeat sql.NullString
		if err := rows.Scan(&agentID, &name, &status, &load, &heartbeat); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\n", agentID, name, status, load, heartbeat.String)
		count++
	}
	w.Flush()
	fmt.Printf("\n%d agents\n", count)
	return rows.Err()
}

func listTasks(db *sql.DB, status string) error {
	query := `
		SELECT task_id, task_type, status, COALESCE(assigned_agent_id, ''), created_at
		FROM tasks`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT 100`

	rows, err := db.Query(query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tTYPE\tSTATUS\tAGENT\tCREATED")
	count := 0
	for rows.Next() {
		var taskID, taskType, taskStatus, agent, created string
		if err := rows.Scan(&taskID, &taskType, &taskStatus, &agent, &created); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", taskID, taskType, taskStatus, agent, created)
		count++
	}
	w.Flush()
	fmt.Printf("\n%d tasks\n", count)
	return rows.Err()
}

func showTask(db *sql.DB, taskID string) error {
	row := db.QueryRow(`
		SELECT task_id, task_type, payload_json, requester_id, COALESCE(assigned_agent_id, ''),
			priority, timeout, status, created_at, COALESCE(completed_at, ''),
			COALESCE(result_json, ''), COALESCE(error, '')
		FROM tasks WHERE task_id = ?
	`, taskID)

	var id, taskType, payload, requester, agent, status, created, completed, result, errText string
	var priority, timeout int
	if err := row.Scan(&id, &taskType, &payload, &requester, &agent, &priority, &timeout,
		&status, &created, &completed, &result, &errText); err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("task %s not found", taskID)
		}
		return err
	}

	fmt.Printf("Task:        %s\n", id)
	fmt.Printf("Type:        %s\n", taskType)
	fmt.Printf("Status:      %s\n", status)
	fmt.Printf("Requester:   %s\n", requester)
	fmt.Printf("Agent:       %s\n", agent)
	fmt.Printf("Priority:    %d\n", priority)
	fmt.Printf("Timeout:     %ds\n", timeout)
	fmt.Printf("Created:     %s\n", created)
	if completed != "" {
		fmt.Printf("Completed:   %s\n", completed)
	}
	fmt.Printf("Payload:     %s\n", payload)
	if result != "" {
		fmt.Printf("Result:      %s\n", result)
	}
	if errText != "" {
		fmt.Printf("Error:       %s\n", errText)
	}
	return nil
}

func deleteAgent(db *sql.DB, agentID string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM agent_capabilities WHERE agent_id = ?`, agentID); err != nil {
		tx.Rollback()
		return err
	}
	res, err := tx.Exec(`DELETE FROM agents WHERE agent_id = ?`, agentID)
	if err != nil {
		tx.Rollback()
		return err
	}
	n, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("agent %s not found", agentID)
	}
	fmt.Printf("Agent %s deleted\n", agentID)
	return nil
}
