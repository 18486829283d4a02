// Package completion renders shell completion scripts.
//
// The script is static text; host names are looked up when the user presses
// TAB, by running "<prog> --list --json" with the -i and --config words from
// the command line and extracting host names with jq. Completion therefore
// resolves the inventory exactly as a connect would. Rendering never touches
// the inventory.
package completion

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"text/template"

	"github.com/treykane/ansible-ssh/internal/security"
	"github.com/treykane/ansible-ssh/internal/util"
)

// Shells lists the supported values for -C/--complete.
var Shells = []string{"bash"}

// Options parameterize the rendered script.
type Options struct {
	// Prog is the command name the completion is registered for.
	Prog string
	// Flags are offered when the current word starts with "-".
	Flags []string
}

var (
	nonIdent = regexp.MustCompile(`[^A-Za-z0-9_]`)
	safeWord = regexp.MustCompile(`^[A-Za-z0-9_./:@+-]+$`)
)

var bashTemplate = template.Must(template.New("bash").Parse(`#!/bin/bash
# Bash completion for {{.Prog}}
#
# Install with:
#   {{.Prog}} -C bash | sudo tee /etc/bash_completion.d/{{.Prog}}

{{.Func}}() {
    local cur prev inv_index inv_file hostlist
    COMPREPLY=()
    cur="${COMP_WORDS[COMP_CWORD]}"
    prev="${COMP_WORDS[COMP_CWORD-1]}"

    if [[ "${prev}" == "-C" || "${prev}" == "--complete" ]]; then
        COMPREPLY=( $(compgen -W "{{.Shells}}" -- "$cur") )
        return 0
    fi

    if [[ "${cur}" == -* ]]; then
        COMPREPLY=( $(compgen -W "{{.Flags}}" -- "$cur") )
        return 0
    fi

    inv_index=-1
    local list_args=()
    for i in "${!COMP_WORDS[@]}"; do
        case "${COMP_WORDS[i]}" in
            -i|--inventory)
                inv_index=$((i+1))
                ;;
            --config)
                if [ $((i+1)) -lt $COMP_CWORD ]; then
                    list_args+=( --config "${COMP_WORDS[i+1]/#\~/$HOME}" )
                fi
                ;;
        esac
    done

    if [ $inv_index -ne -1 ] && [ $COMP_CWORD -eq $inv_index ]; then
        compopt -o nospace
        local IFS=$'\n'
        local files=( $(compgen -f -- "$cur") )
        local completions=()
        for file in "${files[@]}"; do
            if [ -d "$file" ]; then
                completions+=( "${file}/" )
            else
                completions+=( "$file " )
            fi
        done
        COMPREPLY=( "${completions[@]}" )
        return 0
    fi

    if [ $inv_index -ne -1 ]; then
        inv_file="${COMP_WORDS[$inv_index]/#\~/$HOME}"
        if [[ ! -e "$inv_file" ]]; then
            return 0
        fi
        list_args+=( -i "$inv_file" )
    fi
    hostlist=$({{.Command}} "${list_args[@]}" --list --json 2>/dev/null | jq -r '.[].host' 2>/dev/null)
    COMPREPLY=( $(compgen -W "$hostlist" -- "$cur") )
}

complete -F {{.Func}} {{.Command}}
`))

// Write renders the completion script for shell to w.
func Write(w io.Writer, shell string, opts Options) error {
	switch shell {
	case "bash":
	default:
		return security.Usage(fmt.Sprintf("unsupported shell %q (choose from %s)", shell, strings.Join(Shells, ", ")))
	}
	prog := util.DefaultString(opts.Prog, util.AppName)
	data := struct {
		Prog    string
		Command string
		Func    string
		Shells  string
		Flags   string
	}{
		Prog:    prog,
		Command: shellQuote(prog),
		Func:    "_" + nonIdent.ReplaceAllString(prog, "_") + "_completion",
		Shells:  strings.Join(Shells, " "),
		Flags:   strings.Join(opts.Flags, " "),
	}
	return bashTemplate.Execute(w, data)
}

// shellQuote returns s unchanged when it is a plain word, otherwise wrapped in
// single quotes.
func shellQuote(s string) string {
	if s != "" && safeWord.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
