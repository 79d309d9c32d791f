package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fjsoftlab/cvextract/internal/config"
	"github.com/fjsoftlab/cvextract/internal/extraction"
)

// --- ocr ---

var ocrCmd = &cobra.Command{
	Use:   "ocr <filePath>",
	Short: "Run OCR over an uploaded document",
	Long: `Run OCR over an uploaded document and store its markdown.

The argument is the file_path of the document, as returned by
"cvextract documents upload". The command waits for the OCR job to finish.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Running OCR on %s", args[0])
		resp, err := client.post(cmd.Context(), "/api/extract/pdf-data", map[string]string{"filePath": args[0]})
		if err != nil {
			return err
		}

		var result struct {
			Success         bool   `json:"success"`
			MarkdownContent string `json:"markdownContent"`
			ExtractionError string `json:"extractionError"`
		}
		defer resp.Body.Close()
		// A handled OCR failure is a 502 that still carries the result body.
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusBadGateway {
			return responseError(resp)
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
		if !result.Success {
			return fmt.Errorf("OCR failed: %s", result.ExtractionError)
		}

		printSuccess("Extracted %d characters", len([]rune(result.MarkdownContent)))
		fmt.Fprintln(cmd.OutOrStdout(), result.MarkdownContent)
		return nil
	},
}

// --- extract ---

var extractCmd = &cobra.Command{
	Use:   "extract <key>",
	Short: "Run an AI extraction task",
	Long: fmt.Sprintf(`Run an AI extraction task over completed documents.

Keys: %s

Examples:
  cvextract extract extract-individual-data --user u1 --docs d1,d2
  cvextract extract extract-realisations --user u1
  cvextract extract openai-assistant --user u1 --docs d1 --prompt "Points forts ?"`, strings.Join(taskKeys(), ", ")),
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		docsStr, _ := cmd.Flags().GetString("docs")
		prompt, _ := cmd.Flags().GetString("prompt")

		if _, ok := extraction.ParseTask(args[0]); !ok {
			return fmt.Errorf("unknown task %q (want one of %s)", args[0], strings.Join(taskKeys(), ", "))
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		docs := []string{}
		for _, id := range strings.Split(docsStr, ",") {
			if id = strings.TrimSpace(id); id != "" {
				docs = append(docs, id)
			}
		}

		req := map[string]any{"key": args[0], "userId": user, "documentIds": docs}
		if prompt != "" {
			req["prompt"] = prompt
		}
		resp, err := client.post(cmd.Context(), "/api/launch-extraction", req)
		if err != nil {
			return err
		}

		var result extraction.Response
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Processed %d document(s)", result.DocumentsCount)
		for _, d := range result.ProcessedDocuments {
			printStatus(string(d.Type), "%s", d.Title)
		}
		if result.ExtractedData != nil {
			fmt.Fprintln(cmd.OutOrStdout(), prettyResult(*result.ExtractedData))
		}
		return nil
	},
}

func taskKeys() []string {
	var keys []string
	for _, t := range extraction.Tasks() {
		keys = append(keys, t.Key())
	}
	return keys
}

func init() {
	extractCmd.Flags().String("user", "", "owner of the documents")
	extractCmd.Flags().String("docs", "", "comma-separated document ids")
	extractCmd.Flags().String("prompt", "", "custom question for openai-assistant")
}

// --- results ---

var resultsCmd = &cobra.Command{
	Use:   "results <userId>",
	Short: "Show the stored extraction results of a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/prompt-results/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var body struct {
			Results []struct {
				Result  string `json:"result"`
				Prompts struct {
					Title    string `json:"title"`
					SubTitle string `json:"sub_title"`
				} `json:"prompts"`
			} `json:"results"`
		}
		if err := decodeJSON(resp, &body); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(body.Results) == 0 {
			fmt.Fprintln(out, "No results found.")
			return nil
		}
		for _, r := range body.Results {
			fmt.Fprintf(out, "\n%s\n", colorize(colorBold, r.Prompts.Title))
			if r.Prompts.SubTitle != "" {
				fmt.Fprintf(out, "%s\n", r.Prompts.SubTitle)
			}
			fmt.Fprintln(out, prettyResult(r.Result))
		}
		return nil
	},
}

// --- documents ---

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "Upload, list or delete documents",
}

type documentRow struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	DocumentType    string  `json:"document_type"`
	FilePath        string  `json:"file_path"`
	Status          string  `json:"status"`
	ExtractionError *string `json:"extraction_error"`
	CreatedAt       string  `json:"created_at"`
}

var documentsUploadCmd = &cobra.Command{
	Use:   "upload <file.pdf>",
	Short: "Upload a PDF document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		title, _ := cmd.Flags().GetString("title")
		docType, _ := cmd.Flags().GetString("type")
		if user == "" {
			return fmt.Errorf("--user is required")
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		fields := map[string]string{"userId": user, "documentType": docType}
		if title != "" {
			fields["title"] = title
		}
		resp, err := client.upload(cmd.Context(), "/api/documents", fields, filepath.Base(args[0]), data)
		if err != nil {
			return err
		}

		var doc documentRow
		if err := decodeJSON(resp, &doc); err != nil {
			return err
		}

		printSuccess("Uploaded document %s", doc.ID)
		printStatus("File path", "%s", doc.FilePath)
		printStatus("Status", "%s", doc.Status)
		return nil
	},
}

var documentsListCmd = &cobra.Command{
	Use:   "list <userId>",
	Short: "List the documents of a user, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/documents/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var docs []documentRow
		if err := decodeJSON(resp, &docs); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(docs) == 0 {
			fmt.Fprintln(out, "No documents found.")
			return nil
		}
		for _, d := range docs {
			fmt.Fprintf(out, "%s  %-10s  %-14s  %s\n",
				colorize(colorCyan, d.ID),
				statusLabel(d.Status),
				d.DocumentType,
				truncate(d.Title, 60),
			)
			if d.ExtractionError != nil {
				fmt.Fprintf(out, "    %s\n", *d.ExtractionError)
			}
		}
		return nil
	},
}

func statusLabel(status string) string {
	switch status {
	case "completed":
		return colorize(colorGreen, status)
	case "error":
		return colorize(colorRed, status)
	case "processing":
		return colorize(colorYellow, status)
	}
	return status
}

var documentsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a document and its files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/api/documents/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}

		printSuccess("Deleted document %s", args[0])
		return nil
	},
}

func init() {
	documentsUploadCmd.Flags().String("user", "", "owner of the document")
	documentsUploadCmd.Flags().String("title", "", "document title (default: file name)")
	documentsUploadCmd.Flags().String("type", "cv", "cv, linkedin, interview, recommendation or other")
	documentsCmd.AddCommand(documentsUploadCmd)
	documentsCmd.AddCommand(documentsListCmd)
	documentsCmd.AddCommand(documentsDeleteCmd)
}

// --- prompts ---

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "List or seed extraction prompts",
}

var promptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active prompts",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/prompts")
		if err != nil {
			return err
		}

		var prompts []struct {
			Key         string `json:"key"`
			ButtonLabel string `json:"button_label"`
		}
		if err := decodeJSON(resp, &prompts); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(prompts) == 0 {
			fmt.Fprintln(out, "No active prompts. Run \"cvextract prompts seed\".")
			return nil
		}
		for _, p := range prompts {
			fmt.Fprintf(out, "%s  %s\n", colorize(colorBold, p.Key), p.ButtonLabel)
		}
		return nil
	},
}

var promptsSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert the default prompts into the local store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.SeedPrompts(cmd.Context())
		if err != nil {
			return err
		}
		if n == 0 {
			printSuccess("Prompts already seeded")
			return nil
		}
		printSuccess("Seeded %d prompt(s)", n)
		return nil
	},
}

func init() {
	promptsCmd.AddCommand(promptsListCmd)
	promptsCmd.AddCommand(promptsSeedCmd)
}

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show or edit a user profile",
}

var profileShowCmd = &cobra.Command{
	Use:   "show <userId>",
	Short: "Show a profile as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/profiles/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var profile any
		if err := decodeJSON(resp, &profile); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), profile)
	},
}

var profileSetCmd = &cobra.Command{
	Use:   "set <userId>",
	Short: "Set the first or last name of a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]any{}
		if cmd.Flags().Changed("first-name") {
			v, _ := cmd.Flags().GetString("first-name")
			body["first_name"] = v
		}
		if cmd.Flags().Changed("last-name") {
			v, _ := cmd.Flags().GetString("last-name")
			body["last_name"] = v
		}
		if len(body) == 0 {
			return fmt.Errorf("one of --first-name or --last-name is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.patch(cmd.Context(), "/api/profiles/"+url.PathEscape(args[0]), body)
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}

		printSuccess("Profile %s updated", args[0])
		return nil
	},
}

func init() {
	profileSetCmd.Flags().String("first-name", "", "first name")
	profileSetCmd.Flags().String("last-name", "", "last name")
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileSetCmd)
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

		out := cmd.OutOrStdout()
		for _, k := range config.ShowAll(cfg) {
			if k.EnvVar != "" {
				fmt.Fprintf(out, "  %s = %s  (from %s)\n", colorize(colorBold, k.Key), k.Value, k.EnvVar)
				continue
			}
			fmt.Fprintf(out, "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: fmt.Sprintf(`Set a configuration value in the config file.

Secrets are read from the environment only. Valid keys:
  %s`, strings.Join(config.ValidKeys(), "\n  ")),
	Args: cobra.ExactArgs(2),
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
	Short: "Remove a configuration value so its default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
