package swank

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/bastiangx/slynkserve/pkg/sexp"
	"github.com/vmihailenco/msgpack/v5"
)

var packageNameRe = regexp.MustCompile(`#<PACKAGE \\?"(.+?)\\?">`)

// ParsePackageList extracts the names from a printed (list-all-packages), sorted.
func ParsePackageList(value string) []string {
	names := []string{}
	for _, m := range packageNameRe.FindAllStringSubmatch(value, -1) {
		names = append(names, m[1])
	}
	sort.Strings(names)
	return names
}

// ParseSymbolList reads the ("output" "value") pair returned by
// eval-and-grab-output around a printed symbol list, sorted.
func ParseSymbolList(value string) ([]string, error) {
	node, err := sexp.Parse(value)
	if err != nil {
		return nil, fmt.Errorf("swank: reading symbol list: %w", err)
	}
	output, ok := node.Nth(0)
	if !ok || !output.IsString() {
		return nil, fmt.Errorf("swank: symbol list output is not a string: %s", value)
	}

	printed := strings.TrimSpace(output.Text)
	if printed == "" || printed == "()" || strings.EqualFold(printed, "nil") {
		return []string{}, nil
	}
	printed = strings.TrimLeft(printed, "(\"")
	printed = strings.TrimRight(printed, "\")")

	symbols := strings.Fields(printed)
	sort.Strings(symbols)
	return symbols, nil
}

// EncodeItems serializes a name list for ResolvePending.
func EncodeItems(items []string) ([]byte, error) {
	return msgpack.Marshal(items)
}

// Items decodes the name list carried by r.
func (r ResolvePending) Items() ([]string, error) {
	var items []string
	if err := msgpack.Unmarshal(r.Data, &items); err != nil {
		return nil, fmt.Errorf("swank: decoding pending data: %w", err)
	}
	return items, nil
}
