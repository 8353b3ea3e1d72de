package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/spf13/cobra"

	"github.com/mskwm/briefd/internal/config"
)

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Ask the briefing assistant a question",
	Long: `Ask the briefing assistant a question.

Examples:
  briefd chat "What are the key deadlines in the Hoffmann trust?"
  briefd chat --session 4f1c... "And the tax implications?"
  briefd chat --stream "Summarize the Q3 portfolio review"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		message := strings.Join(args, " ")
		sessionID, _ := cmd.Flags().GetString("session")
		stream, _ := cmd.Flags().GetBool("stream")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]any{
			"session_id": sessionID,
			"message":    message,
			"stream":     stream,
		}
		resp, err := client.post(cmd.Context(), "/v1/chat", body)
		if err != nil {
			return err
		}

		if stream {
			return printChatStream(resp)
		}

		var result struct {
			SessionID string `json:"session_id"`
			Answer    string `json:"answer"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printAnswer(result.Answer)
		printStatus("Session", "%s", result.SessionID)
		return nil
	},
}

// printChatStream consumes the chat SSE stream, showing the working notice
// on stderr and the final answer on stdout.
func printChatStream(resp *http.Response) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	var sessionID string
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev struct {
			SessionID string `json:"session_id"`
			Final     bool   `json:"final"`
			Text      string `json:"text"`
		}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			return fmt.Errorf("parsing stream event: %w", err)
		}
		sessionID = ev.SessionID
		if ev.Final {
			printAnswer(ev.Text)
		} else {
			printStep("%s", ev.Text)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading stream: %w", err)
	}
	if sessionID != "" {
		printStatus("Session", "%s", sessionID)
	}
	return nil
}

func init() {
	chatCmd.Flags().String("session", "", "continue an existing session by ID")
	chatCmd.Flags().Bool("stream", false, "stream progress events")
}

// --- sync ---

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync the knowledge base with its data source",
	Long: `Trigger a knowledge-base ingestion job and follow its progress
until it completes, fails, or is stopped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/sync", nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return fmt.Errorf("server returned %d", resp.StatusCode)
		}

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			printStep("%s", strings.TrimPrefix(line, "data: "))
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("reading sync stream: %w", err)
		}
		return nil
	},
}

// --- upload ---

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a document to the knowledge-base data source",
	Long: `Upload a document to the knowledge-base data source.

PDF files are validated locally before upload. Run "briefd sync" afterwards
to make the document searchable.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}

		name := filepath.Base(path)
		if strings.EqualFold(filepath.Ext(name), ".pdf") {
			reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
			if err != nil {
				return fmt.Errorf("%s is not a valid PDF: %w", name, err)
			}
			printStep("Validated %s (%d pages)", name, reader.NumPage())
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.postFile(cmd.Context(), "/v1/documents", "document", name, bytes.NewReader(data))
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Uploaded %s", result["name"])
		printStep("Run \"briefd sync\" to index the new document")
		return nil
	},
}

// --- sessions ---

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage chat sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/sessions")
		if err != nil {
			return err
		}

		var sessions []struct {
			ID        string `json:"id"`
			Title     string `json:"title"`
			UpdatedAt string `json:"updated_at"`
		}
		if err := decodeJSON(resp, &sessions); err != nil {
			return err
		}

		if len(sessions) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}

		for _, s := range sessions {
			fmt.Printf("%s  %s  %s\n",
				colorize(colorCyan, shortID(s.ID)),
				s.UpdatedAt,
				s.Title,
			)
		}
		return nil
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a session transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/sessions/"+args[0])
		if err != nil {
			return err
		}

		var session struct {
			ID    string `json:"id"`
			Title string `json:"title"`
			Turns []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"turns"`
		}
		if err := decodeJSON(resp, &session); err != nil {
			return err
		}

		fmt.Printf("%s\n\n", colorize(colorBold, session.Title))
		for _, t := range session.Turns {
			printTurn(t.Role, t.Content)
		}
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a session and its turns",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/v1/sessions/"+args[0])
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("session %s not found", args[0])
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("server returned %d", resp.StatusCode)
		}

		printSuccess("Deleted session %s", args[0])
		return nil
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			printKV(k.Key, k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
