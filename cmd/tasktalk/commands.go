package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/kalambet/tasktalk/internal/auth"
	"github.com/kalambet/tasktalk/internal/config"
)

// --- chat ---

type chatInvocation struct {
	Name        string          `json:"name"`
	Arguments   json.RawMessage `json:"arguments"`
	OutcomeKind string          `json:"outcomeKind"`
	Result      json.RawMessage `json:"result,omitempty"`
}

type chatResult struct {
	ConversationID string           `json:"conversationId"`
	Reply          string           `json:"reply"`
	Operations     []chatInvocation `json:"operations"`
}

func sendChat(ctx context.Context, c *apiClient, conversationID, utterance string) (chatResult, error) {
	body := map[string]string{"utterance": utterance}
	if conversationID != "" {
		body["conversationId"] = conversationID
	}
	resp, err := c.post(ctx, "/v1/chat", body)
	if err != nil {
		return chatResult{}, err
	}
	var res chatResult
	if err := decodeJSON(resp, &res); err != nil {
		return chatResult{}, err
	}
	return res, nil
}

func printTurn(w io.Writer, format string, res chatResult) error {
	if format != "table" {
		return render(w, format, res, nil)
	}
	for _, op := range res.Operations {
		mark := colorize(colorGreen, "✓")
		if op.OutcomeKind != "success" {
			mark = colorize(colorYellow, "⚠")
		}
		fmt.Fprintf(w, "%s %s %s\n", mark, colorize(colorCyan, op.Name), string(op.Arguments))
	}
	fmt.Fprintln(w, res.Reply)
	return nil
}

var chatCmd = &cobra.Command{
	Use:   "chat [utterance...]",
	Short: "Talk to the task assistant",
	Long: `Talk to the task assistant.

With an utterance, sends a single turn and prints the reply. Without one,
reads utterances line by line from stdin until EOF, keeping the conversation.

Examples:
  tasktalk chat "add buy milk, high priority"
  tasktalk chat --conversation 3f2c... "what's still open?"
  tasktalk chat`,
	RunE: func(cmd *cobra.Command, args []string) error {
		conversationID, _ := cmd.Flags().GetString("conversation")
		format, err := outputFormat()
		if err != nil {
			return err
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		if len(args) > 0 {
			res, err := sendChat(ctx, client, conversationID, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if conversationID == "" && format == "table" {
				printStep("conversation %s", res.ConversationID)
			}
			return printTurn(out, format, res)
		}

		return chatLoop(ctx, client, conversationID, format, cmd.InOrStdin(), out)
	},
}

func chatLoop(ctx context.Context, client *apiClient, conversationID, format string, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	for {
		if format == "table" {
			fmt.Fprint(out, colorize(colorBold, "> "))
		}
		if !sc.Scan() {
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		res, err := sendChat(ctx, client, conversationID, line)
		if err != nil {
			var apiErr *apiError
			// Keep the conversation going after per-turn failures.
			if errors.As(err, &apiErr) {
				if apiErr.ConversationID != "" {
					conversationID = apiErr.ConversationID
				}
				printError("%v", err)
				continue
			}
			return err
		}
		conversationID = res.ConversationID
		if err := printTurn(out, format, res); err != nil {
			return err
		}
	}
}

func init() {
	chatCmd.Flags().StringP("conversation", "c", "", "continue an existing conversation")
}

// --- conversations ---

type conversationItem struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type messageItem struct {
	ID         string          `json:"id"`
	Role       string          `json:"role"`
	Content    string          `json:"content"`
	Operations json.RawMessage `json:"operations,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

type conversationDetail struct {
	conversationItem
	Messages []messageItem `json:"messages"`
}

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"conv"},
	Short:   "Browse and manage conversations",
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		format, err := outputFormat()
		if err != nil {
			return err
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/v1/conversations?limit=%d&offset=%d", limit, offset))
		if err != nil {
			return err
		}
		var convs []conversationItem
		if err := decodeJSON(resp, &convs); err != nil {
			return err
		}

		if format == "table" && len(convs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No conversations found.")
			return nil
		}
		return render(cmd.OutOrStdout(), format, convs, func(t table.Writer) {
			t.AppendHeader(table.Row{"ID", "Title", "Updated"})
			for _, c := range convs {
				t.AppendRow(table.Row{c.ID, clip(c.Title, 60), c.UpdatedAt.Local().Format(time.DateTime)})
			}
		})
	},
}

var conversationsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a conversation with its messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		format, err := outputFormat()
		if err != nil {
			return err
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/v1/conversations/%s?limit=%d", url.PathEscape(args[0]), limit))
		if err != nil {
			return err
		}
		var conv conversationDetail
		if err := decodeJSON(resp, &conv); err != nil {
			return err
		}

		if format == "table" {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", colorize(colorBold, conv.Title), colorize(colorCyan, shortID(conv.ID)))
		}
		return render(cmd.OutOrStdout(), format, conv, func(t table.Writer) {
			t.AppendHeader(table.Row{"Time", "Role", "Content"})
			for _, m := range conv.Messages {
				t.AppendRow(table.Row{m.CreatedAt.Local().Format(time.TimeOnly), m.Role, clip(m.Content, 100)})
			}
		})
	},
}

var conversationsRenameCmd = &cobra.Command{
	Use:   "rename <id> <title...>",
	Short: "Rename a conversation",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		title := strings.Join(args[1:], " ")
		resp, err := client.patch(cmd.Context(), "/v1/conversations/"+url.PathEscape(args[0]), map[string]string{"title": title})
		if err != nil {
			return err
		}
		var conv conversationItem
		if err := decodeJSON(resp, &conv); err != nil {
			return err
		}
		printSuccess("Renamed %s to %q", shortID(conv.ID), conv.Title)
		return nil
	},
}

var conversationsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a conversation and its messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/v1/conversations/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Deleted conversation %s", args[0])
		return nil
	},
}

func init() {
	conversationsListCmd.Flags().Int("limit", 20, "maximum number of conversations to list")
	conversationsListCmd.Flags().Int("offset", 0, "number of conversations to skip")
	conversationsShowCmd.Flags().Int("limit", 50, "maximum number of messages to show")
	conversationsCmd.AddCommand(conversationsListCmd)
	conversationsCmd.AddCommand(conversationsShowCmd)
	conversationsCmd.AddCommand(conversationsRenameCmd)
	conversationsCmd.AddCommand(conversationsDeleteCmd)
}

// --- token ---

var tokenCmd = &cobra.Command{
	Use:   "token <owner>",
	Short: "Mint a development bearer token for an owner",
	Long: `Mint a development bearer token for an owner.

Signs with TASKTALK_JWT_SECRET. Intended for local use; production tokens
come from your identity provider.

Example:
  export TASKTALK_TOKEN=$(tasktalk token alice)`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ttl, _ := cmd.Flags().GetDuration("ttl")
		secret := os.Getenv("TASKTALK_JWT_SECRET")
		if secret == "" {
			return errors.New("TASKTALK_JWT_SECRET is not set")
		}
		tok, err := auth.Issue(secret, args[0], ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
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
		format, err := outputFormat()
		if err != nil {
			return err
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		return render(cmd.OutOrStdout(), format, keys, func(t table.Writer) {
			t.AppendHeader(table.Row{"Key", "Value", "Env"})
			for _, k := range keys {
				t.AppendRow(table.Row{k.Key, k.Value, k.EnvVar})
			}
		})
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

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a value from the config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), config.Path())
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
	configCmd.AddCommand(configPathCmd)
}
