// Package config provides configuration loading, policy layering and path
// management for toolgate.
//
// # Configuration Loading
//
// Load merges settings and rule layers from several sources in priority order:
//
//  1. Built-in rules (policy.DefaultRules)
//  2. Global config (~/.config/toolgate/toolgate.json[c] and policies/*)
//  3. Project config (<dir>/.toolgate/toolgate.json[c] and .toolgate/policies/*)
//  4. TOOLGATE_CONFIG file
//  5. TOOLGATE_CONFIG_CONTENT inline JSON
//  6. Environment variables
//
// Scalar settings from later sources overwrite earlier ones. alwaysConfirm
// globs accumulate. Each settings file with inline rules and each rule file
// becomes its own policy.Layer, so a later layer wins over an earlier one
// at equal priority.
//
// Unlike most settings loaders, a malformed file is fatal: Load returns a
// *policy.ConfigError naming the file, the rule index and the field.
//
// # Settings
//
//	{
//	  "approvalMode": "auto_edit",
//	  "disableYolo": true,
//	  "confirmationTimeout": "5m",
//	  "alwaysConfirm": ["deploy_*"],
//	  "doomLoop": "ask",
//	  "logLevel": "debug",
//	  "rules": [
//	    {"tool": "bash", "commands": ["make *"], "decision": "allow", "priority": 50}
//	  ]
//	}
//
// confirmationTimeout takes a Go duration; "0" waits forever.
//
// # Rule Files
//
// Files under policies/ hold only rules and may be JSON, JSONC or YAML:
//
//	rules:
//	  - name: no-force-push
//	    tool: bash
//	    commands: ["git push --force *"]
//	    decision: deny
//	    priority: 500
//
// # Variable Interpolation
//
// Settings files support {env:VAR_NAME} and {file:path} placeholders. File
// paths are resolved relative to the settings file directory; ~/ expands to
// the home directory.
//
// # Environment Variable Overrides
//
//   - TOOLGATE_APPROVAL_MODE - initial approval mode
//   - TOOLGATE_DISABLE_YOLO - true to refuse yolo
//   - TOOLGATE_CONFIRMATION_TIMEOUT - Go duration
//   - TOOLGATE_LOG_LEVEL - zerolog level name
//
// # Hot Reload
//
// Watcher observes the settings and policies directories with fsnotify and
// hands a freshly compiled engine to an EngineSetter after each change. A
// reload that fails leaves the previous engine in place.
package config
