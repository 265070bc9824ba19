package dnsmasq

import (
	"bufio"
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"gitlab.bluewillows.net/root/dynhost/pkg/zone"
)

const fileHeader = `# Managed by dynhost.
# host-record lines in this file are rewritten on every address update.

`

// entry is one line of the managed file. Lines that carry no address
// records keep their text verbatim.
type entry struct {
	text    string
	records []zone.ResourceRecord
	edited  bool
}

// zoneFile is the parsed managed file.
type zoneFile struct {
	entries []*entry
	header  bool
}

// parseZoneFile parses host-record= and address= lines. defaultTTL applies
// to lines that carry no TTL of their own.
func parseZoneFile(content string, defaultTTL int) (*zoneFile, error) {
	f := &zoneFile{header: strings.HasPrefix(content, "# Managed by dynhost")}

	scanner := bufio.NewScanner(strings.NewReader(content))
	for n := 1; scanner.Scan(); n++ {
		text := scanner.Text()
		records, err := parseLine(strings.TrimSpace(text), defaultTTL)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		f.entries = append(f.entries, &entry{text: text, records: records})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning zone file: %w", err)
	}
	return f, nil
}

// parseLine returns the records a line publishes, nil for other lines.
//
//	host-record=<name>[,<name>...],[<ipv4>],[<ipv6>][,<ttl>]
//	address=/<name>[/<name>...]/<ip>
func parseLine(line string, defaultTTL int) ([]zone.ResourceRecord, error) {
	switch {
	case strings.HasPrefix(line, "host-record="):
		var names []string
		var addrs []netip.Addr
		ttl := defaultTTL
		for _, field := range strings.Split(strings.TrimPrefix(line, "host-record="), ",") {
			field = strings.TrimSpace(field)
			if addr, err := netip.ParseAddr(field); err == nil {
				addrs = append(addrs, addr)
				continue
			}
			if n, err := strconv.Atoi(field); err == nil && len(addrs) > 0 {
				ttl = n
				continue
			}
			if field != "" {
				names = append(names, field)
			}
		}
		return expand(names, addrs, ttl)

	case strings.HasPrefix(line, "address=/"):
		parts := strings.Split(strings.TrimPrefix(line, "address=/"), "/")
		if len(parts) < 2 {
			return nil, fmt.Errorf("malformed address line %q", line)
		}
		addr, err := netip.ParseAddr(parts[len(parts)-1])
		if err != nil {
			// address=/name/ without an IP blocks the name; not a record
			return nil, nil
		}
		return expand(parts[:len(parts)-1], []netip.Addr{addr}, defaultTTL)
	}
	return nil, nil
}

func expand(names []string, addrs []netip.Addr, ttl int) ([]zone.ResourceRecord, error) {
	var records []zone.ResourceRecord
	for _, name := range names {
		for _, addr := range addrs {
			r, err := zone.NewRecord(zone.RecordTypeFor(addr), zone.FQDN(strings.ToLower(name)), ttl, addr.String())
			if err != nil {
				return nil, err
			}
			records = append(records, r)
		}
	}
	return records, nil
}

// formatRecord renders one record as a host-record line.
func formatRecord(r zone.ResourceRecord) string {
	return fmt.Sprintf("host-record=%s,%s,%d", strings.TrimSuffix(r.Name, "."), r.Data, r.TTL)
}

// find returns the records named name whose type is in types.
func (f *zoneFile) find(name string, types []zone.RecordType) []zone.ResourceRecord {
	var out []zone.ResourceRecord
	for _, e := range f.entries {
		for _, r := range e.records {
			if strings.EqualFold(r.Name, name) && zone.HasType(types, r.Type) {
				out = append(out, r)
			}
		}
	}
	return out
}

// remove deletes one record equal to r. It reports false when the file
// holds no such record.
func (f *zoneFile) remove(r zone.ResourceRecord) bool {
	for _, e := range f.entries {
		for i, existing := range e.records {
			if existing.Equal(r) {
				e.records = append(e.records[:i:i], e.records[i+1:]...)
				e.edited = true
				return true
			}
		}
	}
	return false
}

// add appends a host-record line for r.
func (f *zoneFile) add(r zone.ResourceRecord) {
	f.entries = append(f.entries, &entry{records: []zone.ResourceRecord{r}, edited: true})
}

// render produces the file content. Edited lines are rewritten as one
// host-record line per remaining record; others keep their text.
func (f *zoneFile) render() []byte {
	var b strings.Builder
	if !f.header {
		b.WriteString(fileHeader)
	}
	for _, e := range f.entries {
		if !e.edited {
			b.WriteString(e.text)
			b.WriteByte('\n')
			continue
		}
		for _, r := range e.records {
			b.WriteString(formatRecord(r))
			b.WriteByte('\n')
		}
	}
	return []byte(b.String())
}
