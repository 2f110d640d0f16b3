package distinfo

import (
	"bufio"
	"io"
	"strings"
)

// parseEntryPointsINI parses entry_points.txt: INI sections are groups
// ("console_scripts", "gui_scripts", ...), values are "module:object" or
// "module:object [extra1,extra2]".
func parseEntryPointsINI(r io.Reader) ([]EntryPoint, error) {
	var entries []EntryPoint

	group := ""

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			group = strings.TrimSpace(line[1 : len(line)-1])
			continue
		}

		if group == "" {
			continue
		}

		ep, ok := parseEntryPointLine(group, line)
		if ok {
			entries = append(entries, ep)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

func parseEntryPointLine(group, line string) (EntryPoint, bool) {
	name, value, ok := strings.Cut(line, "=")
	if !ok {
		return EntryPoint{}, false
	}

	name = strings.TrimSpace(name)
	value = strings.TrimSpace(value)

	var extras []string

	if i := strings.IndexByte(value, '['); i >= 0 {
		if j := strings.IndexByte(value, ']'); j > i {
			for _, e := range strings.Split(value[i+1:j], ",") {
				if e = strings.TrimSpace(e); e != "" {
					extras = append(extras, e)
				}
			}
		}

		value = strings.TrimSpace(value[:i])
	}

	module, object, ok := strings.Cut(value, ":")
	if !ok {
		return EntryPoint{}, false
	}

	return EntryPoint{
		Group:  group,
		Name:   name,
		Module: strings.TrimSpace(module),
		Object: strings.TrimSpace(object),
		Extras: extras,
	}, true
}
