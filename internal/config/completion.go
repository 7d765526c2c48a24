package config

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Commands and global flags offered by shell completion
var (
	completionCommands = []string{
		"version", "info", "ping", "containers", "container", "volumes", "volume",
		"images", "networks", "snapshot", "serve", "completion", "help",
	}
	completionFlags = []string{
		"--socket", "--host", "--dial-timeout", "--io-timeout", "--serialize",
		"--log-level", "--log-file", "--log-format", "--listen", "--metrics",
		"--metrics-addr", "--telemetry", "--concurrency", "--output", "--profile",
		"--config", "--help",
	}
)

// GenerateCompletion writes a completion script for shellType to w. When
// TEUS_COMPLETION_OUTPUT is set the script is written to that file instead.
func GenerateCompletion(w io.Writer, shellType string) error {
	var script string
	switch shellType {
	case "bash":
		script = bashCompletion()
	case "zsh":
		script = zshCompletion()
	case "fish":
		script = fishCompletion()
	default:
		return fmt.Errorf("unsupported shell type: %s", shellType)
	}

	if outputFile := getEnv("COMPLETION_OUTPUT", ""); outputFile != "" {
		return os.WriteFile(outputFile, []byte(script), 0o644)
	}

	_, err := io.WriteString(w, script)
	return err
}

func bashCompletion() string {
	return `# Bash completion for teus

_teus_completions() {
  local cur prev
  COMPREPLY=()
  cur="${COMP_WORDS[COMP_CWORD]}"
  prev="${COMP_WORDS[COMP_CWORD-1]}"

  case "${prev}" in
    --log-level)
      COMPREPLY=( $(compgen -W "debug info warn error" -- ${cur}) )
      return 0
      ;;
    --log-format)
      COMPREPLY=( $(compgen -W "console json" -- ${cur}) )
      return 0
      ;;
    --socket|--log-file|--output|--config)
      COMPREPLY=( $(compgen -f -- ${cur}) )
      return 0
      ;;
    completion)
      COMPREPLY=( $(compgen -W "bash zsh fish" -- ${cur}) )
      return 0
      ;;
  esac

  if [[ ${cur} == -* ]]; then
    COMPREPLY=( $(compgen -W "` + strings.Join(completionFlags, " ") + `" -- ${cur}) )
  else
    COMPREPLY=( $(compgen -W "` + strings.Join(completionCommands, " ") + `" -- ${cur}) )
  fi
  return 0
}

complete -F _teus_completions teus
`
}

func zshCompletion() string {
	return `#compdef teus

_arguments \
  '--socket[Path to the Docker daemon Unix socket]:socket:_files' \
  '--host[Host header sent to the daemon]:host:' \
  '--dial-timeout[Timeout for connecting to the socket]:duration:' \
  '--io-timeout[Timeout for one request/response exchange]:duration:' \
  '--serialize[Send requests one at a time]' \
  '--log-level[Log level]:level:(debug info warn error)' \
  '--log-file[Log to file in addition to stderr]:file:_files' \
  '--log-format[Log format]:format:(console json)' \
  '--listen[Address the serve command listens on]:addr:' \
  '--metrics[Enable metrics collection]' \
  '--metrics-addr[Serve /metrics on a separate address]:addr:' \
  '--concurrency[Maximum concurrent daemon requests]:n:' \
  '--output[Snapshot report file]:file:_files' \
  '--profile[Configuration profile]:profile:' \
  '--config[Configuration file]:file:_files' \
  '1:command:(` + strings.Join(completionCommands, " ") + `)' \
  '*::args:'
`
}

func fishCompletion() string {
	var b strings.Builder
	b.WriteString("# Fish shell completion for teus\n\n")
	fmt.Fprintf(&b, "complete -c teus -n __fish_use_subcommand -f -a %q\n", strings.Join(completionCommands, " "))
	for _, flag := range completionFlags {
		fmt.Fprintf(&b, "complete -c teus -l %s\n", strings.TrimPrefix(flag, "--"))
	}
	b.WriteString("complete -c teus -l log-level -r -a \"debug info warn error\"\n")
	b.WriteString("complete -c teus -l log-format -r -a \"console json\"\n")
	b.WriteString("complete -c teus -n \"__fish_seen_subcommand_from completion\" -a \"bash zsh fish\"\n")
	return b.String()
}
