// Package config handles configuration loading for alexa-bridge.
//
// # Overview
//
// Configuration is loaded from a YAML (or TOML, by .toml extension) file with
// environment variable expansion. Load applies defaults and validates the result.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from ALEXA_BRIDGE_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/alexa-bridge/config.yaml
//  3. ~/.config/alexa-bridge/config.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	botframework:
//	  app_id: "${MICROSOFT_APP_ID}"
//	  app_password: "${MICROSOFT_APP_PASSWORD}"
//
// # Configuration Sections
//
//	server:
//	  http_addr: "0.0.0.0:3978"
//
//	tailscale:
//	  enabled: false
//	  hostname: "alexa-bridge"
//	  funnel: true              # Alexa requires a public HTTPS endpoint
//
//	alexa:
//	  skill_id: "amzn1.ask.skill.xxxx"
//	  utterance_intent: "GetUserIntent"
//	  utterance_slot: "phrase"
//	  verify_timestamp: true
//	  timestamp_tolerance: "150s"
//	  replay_ttl: "5m"
//
//	state:
//	  backend: "sqlite"         # memory, sqlite, badger
//	  path: "/var/lib/alexa-bridge/state.db"
//
//	knowledge:
//	  backend: "qnamaker"       # none, qnamaker, local
//	  host: "https://my-qna.azurewebsites.net/qnamaker"
//	  knowledge_base_id: "${QNA_KB_ID}"
//	  endpoint_key: "${QNA_AUTH_KEY}"
//	  score_threshold: 0.3
//
//	monitor:
//	  activation_phrase: "monitor alexa"
//	  send_timeout: "10s"
//
//	object_log:
//	  enabled: true
//	  dir: "object-logs"
//	  retention: "360h"
//	  prune_cron: "0 3 * * *"
//
//	bot:
//	  repeat_turns: 4
//	  default_locale: "es"
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
//	cfg, err := config.Load(path)
//	if err != nil {
//	    return fmt.Errorf("loading config: %w", err)
//	}
package config
