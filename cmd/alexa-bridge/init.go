// ABOUTME: The init command, which writes a starter config file interactively
// ABOUTME: Prompts for listener, state, knowledge, and channel settings with sensible defaults

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// initAnswers holds everything the init prompts collect.
type initAnswers struct {
	httpAddr         string
	stateBackend     string
	statePath        string
	knowledgeBackend string
	knowledgeFile    string
	skillID          string
	appID            string
	tailscale        bool
	tsHostname       string
	tsFunnel         bool
	matrix           bool
	matrixServer     string
	matrixUser       string
	logLevel         string
}

func isYes(s string) bool {
	s = strings.ToLower(s)
	return s == "yes" || s == "y"
}

func runInit(in io.Reader) error {
	reader := bufio.NewReader(in)

	fmt.Println("alexa-bridge configuration setup")
	fmt.Println("================================")
	fmt.Println()

	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()

	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	if _, err := os.Stat(outputFile); err == nil {
		if !isYes(prompt(reader, "File exists. Overwrite?", "no")) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	var a initAnswers

	fmt.Println("\n--- Server Configuration ---")
	a.httpAddr = prompt(reader, "HTTP address", "localhost:3978")

	fmt.Println("\n--- State Configuration ---")
	a.stateBackend = prompt(reader, "State backend (memory/sqlite/badger)", "sqlite")
	switch a.stateBackend {
	case "sqlite":
		a.statePath = prompt(reader, "SQLite database path", filepath.Join(defaultDataPath, "state.db"))
	case "badger":
		a.statePath = prompt(reader, "Badger directory", filepath.Join(defaultDataPath, "state"))
	}

	fmt.Println("\n--- Knowledge Base ---")
	a.knowledgeBackend = prompt(reader, "Knowledge backend (none/qnamaker/local)", "none")
	if a.knowledgeBackend == "local" {
		a.knowledgeFile = prompt(reader, "Question/answer pairs file", filepath.Join(defaultDataPath, "qna.yaml"))
	}

	fmt.Println("\n--- Channels ---")
	a.skillID = prompt(reader, "Alexa skill id (leave empty to accept any)", "")
	a.appID = prompt(reader, "Bot Framework app id (leave empty for emulator mode)", "")

	a.tailscale = isYes(prompt(reader, "Enable Tailscale?", "no"))
	if a.tailscale {
		a.tsHostname = prompt(reader, "Tailscale hostname", "alexa-bridge")
		a.tsFunnel = isYes(prompt(reader, "Enable Funnel (public HTTPS, needed by Alexa)?", "yes"))
	}

	a.matrix = isYes(prompt(reader, "Enable Matrix monitor channel?", "no"))
	if a.matrix {
		a.matrixServer = prompt(reader, "Matrix homeserver", "https://matrix.org")
		a.matrixUser = prompt(reader, "Matrix user id", "")
	}

	fmt.Println("\n--- Logging Configuration ---")
	a.logLevel = prompt(reader, "Log level (debug/info/warn/error)", "info")

	if dir := filepath.Dir(outputFile); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}

	// The file may carry ${ENV} placeholders for secrets, but keep it private anyway.
	if err := os.WriteFile(outputFile, []byte(renderConfig(a)), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	if a.statePath != "" {
		if err := os.MkdirAll(filepath.Dir(a.statePath), 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  alexa-bridge serve\n")

	return nil
}

// renderConfig produces the YAML config for the collected answers.
func renderConfig(a initAnswers) string {
	var cfg strings.Builder
	cfg.WriteString("# alexa-bridge configuration\n")
	cfg.WriteString("# Generated by alexa-bridge init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: %q\n", a.httpAddr))
	cfg.WriteString("\n")

	cfg.WriteString("state:\n")
	cfg.WriteString(fmt.Sprintf("  backend: %q\n", a.stateBackend))
	if a.statePath != "" {
		cfg.WriteString(fmt.Sprintf("  path: %q\n", a.statePath))
	}
	cfg.WriteString("\n")

	cfg.WriteString("knowledge:\n")
	cfg.WriteString(fmt.Sprintf("  backend: %q\n", a.knowledgeBackend))
	switch a.knowledgeBackend {
	case "qnamaker":
		cfg.WriteString("  host: \"${QNA_HOST}\"\n")
		cfg.WriteString("  knowledge_base_id: \"${QNA_KB_ID}\"\n")
		cfg.WriteString("  endpoint_key: \"${QNA_ENDPOINT_KEY}\"\n")
	case "local":
		cfg.WriteString(fmt.Sprintf("  file: %q\n", a.knowledgeFile))
		cfg.WriteString("  embedder: \"hashing\"\n")
	}
	cfg.WriteString("\n")

	cfg.WriteString("alexa:\n")
	if a.skillID != "" {
		cfg.WriteString(fmt.Sprintf("  skill_id: %q\n", a.skillID))
	}
	cfg.WriteString("  verify_timestamp: true\n")
	cfg.WriteString("\n")

	if a.appID != "" {
		cfg.WriteString("botframework:\n")
		cfg.WriteString(fmt.Sprintf("  app_id: %q\n", a.appID))
		cfg.WriteString("  app_password: \"${MICROSOFT_APP_PASSWORD}\"\n")
		cfg.WriteString("\n")
	}

	cfg.WriteString("tailscale:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", a.tailscale))
	if a.tailscale {
		cfg.WriteString(fmt.Sprintf("  hostname: %q\n", a.tsHostname))
		cfg.WriteString(fmt.Sprintf("  funnel: %t\n", a.tsFunnel))
	}
	cfg.WriteString("\n")

	if a.matrix {
		cfg.WriteString("matrix:\n")
		cfg.WriteString("  enabled: true\n")
		cfg.WriteString(fmt.Sprintf("  homeserver: %q\n", a.matrixServer))
		cfg.WriteString(fmt.Sprintf("  user_id: %q\n", a.matrixUser))
		cfg.WriteString("  access_token: \"${MATRIX_ACCESS_TOKEN}\"\n")
		cfg.WriteString("\n")
	}

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: %q\n", a.logLevel))
	cfg.WriteString("  format: \"text\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("metrics:\n")
	cfg.WriteString("  enabled: false\n")
	cfg.WriteString("  path: \"/metrics\"\n")

	return cfg.String()
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
