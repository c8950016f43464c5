package catalog

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"cantrace/internal/canid"
	"cantrace/internal/signal"
)

// Message is one catalog entry: a named CAN message and its signal layout.
type Message struct {
	Name       string
	DataLength int
	Signals    map[string]signal.Descriptor
}

// Catalog maps canonical identifiers to message definitions. Built once
// at configuration load and read-only afterwards.
type Catalog struct {
	byID   map[canid.CanonicalID]*Message
	byName map[string]*Message
	ids    []canid.CanonicalID
}

type fileCatalog struct {
	Messages map[string]fileMessage `yaml:"messages"`
}

type fileMessage struct {
	Name       string                `yaml:"name"`
	DataLength int                   `yaml:"data_length"`
	Signals    map[string]fileSignal `yaml:"signals"`
}

type fileSignal struct {
	StartBit   int     `yaml:"start_bit"`
	BitLength  int     `yaml:"bit_length"`
	Endianness string  `yaml:"endianness"`
	Signed     bool    `yaml:"signed"`
	Scale      float64 `yaml:"scale"`
	Offset     float64 `yaml:"offset"`
	Unit       string  `yaml:"unit"`
	Min        float64 `yaml:"min"`
	Max        float64 `yaml:"max"`
}

// Load reads a catalog YAML file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return Parse(data)
}

// Parse builds a catalog from YAML bytes. Duplicate canonical ids and
// zero scales are configuration errors.
func Parse(data []byte) (*Catalog, error) {
	var file fileCatalog
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	c := &Catalog{
		byID:   make(map[canid.CanonicalID]*Message, len(file.Messages)),
		byName: make(map[string]*Message),
	}

	for rawID, fm := range file.Messages {
		id, err := canid.Normalize(rawID, false)
		if err != nil {
			return nil, fmt.Errorf("catalog id %q: %w", rawID, err)
		}
		if _, exists := c.byID[id]; exists {
			return nil, fmt.Errorf("catalog id %q: duplicate canonical identifier %s", rawID, id)
		}

		msg := &Message{
			Name:       fm.Name,
			DataLength: fm.DataLength,
			Signals:    make(map[string]signal.Descriptor, len(fm.Signals)),
		}
		for name, fs := range fm.Signals {
			end, err := parseEndianness(fs.Endianness)
			if err != nil {
				return nil, fmt.Errorf("catalog signal %s/%s: %w", fm.Name, name, err)
			}
			if fs.Scale == 0 {
				return nil, fmt.Errorf("catalog signal %s/%s: scale must be non-zero", fm.Name, name)
			}
			if err := checkCoverage(fs, end, fm.DataLength); err != nil {
				return nil, fmt.Errorf("catalog signal %s/%s: %w", fm.Name, name, err)
			}
			msg.Signals[name] = signal.Descriptor{
				Name:       name,
				StartBit:   fs.StartBit,
				BitLength:  fs.BitLength,
				Endianness: end,
				Signed:     fs.Signed,
				Scale:      fs.Scale,
				Offset:     fs.Offset,
				Unit:       fs.Unit,
				Min:        fs.Min,
				Max:        fs.Max,
			}
		}

		c.byID[id] = msg
		c.ids = append(c.ids, id)
		c.indexName(msg)
	}

	sort.Slice(c.ids, func(i, j int) bool {
		return canid.Value(c.ids[i]) < canid.Value(c.ids[j])
	})

	return c, nil
}

// indexName registers a message under its name plus cleaned variants,
// first registration wins. Display grouping metadata, not decode logic.
func (c *Catalog) indexName(msg *Message) {
	for _, variant := range nameVariants(msg.Name) {
		if _, exists := c.byName[variant]; !exists {
			c.byName[variant] = msg
		}
	}
}

func nameVariants(name string) []string {
	trimmed := strings.TrimSpace(name)
	lower := strings.ToLower(trimmed)
	variants := []string{name}
	if trimmed != name {
		variants = append(variants, trimmed)
	}
	if lower != trimmed {
		variants = append(variants, lower)
	}
	return variants
}

// DefinitionFor looks up the message definition for a canonical id.
func (c *Catalog) DefinitionFor(id canid.CanonicalID) (*Message, bool) {
	msg, ok := c.byID[id]
	return msg, ok
}

// ByName looks up a message by name or a cleaned variant of it.
func (c *Catalog) ByName(name string) (*Message, bool) {
	if msg, ok := c.byName[name]; ok {
		return msg, true
	}
	msg, ok := c.byName[strings.ToLower(strings.TrimSpace(name))]
	return msg, ok
}

// IDs returns all canonical ids in ascending numeric order.
func (c *Catalog) IDs() []canid.CanonicalID {
	out := make([]canid.CanonicalID, len(c.ids))
	copy(out, c.ids)
	return out
}

// SignalNames returns the sorted union of signal names across all
// messages, the column set of the decoded CSV export.
func (c *Catalog) SignalNames() []string {
	seen := make(map[string]struct{})
	for _, msg := range c.byID {
		for name := range msg.Signals {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of message definitions.
func (c *Catalog) Len() int {
	return len(c.byID)
}

// checkCoverage rejects a descriptor whose bit field cannot fit inside
// the message's declared payload. Intel counts upward from the start
// bit; Motorola walks toward less significant bits and wraps to bit 7
// of the next higher-indexed byte, so its headroom is the remainder of
// the start byte plus every byte after it.
func checkCoverage(fs fileSignal, end signal.Endianness, dataLength int) error {
	if fs.BitLength < 1 || fs.BitLength > 64 || fs.StartBit < 0 {
		return fmt.Errorf("bad bit range %d+%d", fs.StartBit, fs.BitLength)
	}

	switch end {
	case signal.Motorola:
		startByte := fs.StartBit / 8
		headroom := fs.StartBit%8 + 1 + (dataLength-startByte-1)*8
		if startByte >= dataLength || fs.BitLength > headroom {
			return fmt.Errorf("field %d+%d exceeds %d-byte payload", fs.StartBit, fs.BitLength, dataLength)
		}
	default:
		if fs.StartBit+fs.BitLength > dataLength*8 {
			return fmt.Errorf("field %d+%d exceeds %d-byte payload", fs.StartBit, fs.BitLength, dataLength)
		}
	}
	return nil
}

func parseEndianness(s string) (signal.Endianness, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "intel", "little", "little_endian", "":
		return signal.Intel, nil
	case "motorola", "big", "big_endian":
		return signal.Motorola, nil
	default:
		return signal.Intel, fmt.Errorf("unknown endianness %q", s)
	}
}
