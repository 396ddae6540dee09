package schema

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"
)

//go:embed base.csf
var rawDefaultSchema []byte

var ErrSchemaFormat = errors.New("invalid schema file")

// Default returns the embedded example schema.
func Default() *Database {
	db, err := Parse(rawDefaultSchema, "default")
	if err != nil {
		panic(err)
	}
	return db
}

// Parse loads a schema description file (.csf, ini format).
// file can be either a path, an *os.File or []byte.
// Message sections are top level, signal sections are children
// named <message>.<signal> :
//
//	[EngineStatus]
//	Id = 0x100
//	Dlc = 8
//	CycleTime = 100
//
//	[EngineStatus.Rpm]
//	Start = 0
//	Length = 16
//	Scale = 0.25
func Parse(file any, name string) (*Database, error) {
	cfg, err := ini.Load(file)
	if err != nil {
		return nil, err
	}
	db := NewDatabase(name)
	for _, section := range cfg.Sections() {
		sectionName := section.Name()
		if sectionName == ini.DefaultSection {
			continue
		}
		// Signal sections are handled together with their message
		if strings.Contains(sectionName, ".") {
			continue
		}
		message, err := parseMessage(section)
		if err != nil {
			return nil, err
		}
		for _, child := range section.ChildSections() {
			signal, err := parseSignal(child)
			if err != nil {
				return nil, err
			}
			if err := message.AddSignal(signal); err != nil {
				return nil, err
			}
		}
		if err := db.AddMessage(message); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// ParseFile loads a schema file, the database is named after the
// file without its extension.
func ParseFile(path string) (*Database, error) {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return Parse(path, name)
}

func parseMessage(section *ini.Section) (*Message, error) {
	if !section.HasKey("Id") {
		return nil, fmt.Errorf("%w : message %v has no Id", ErrSchemaFormat, section.Name())
	}
	id, err := strconv.ParseUint(strings.TrimSpace(section.Key("Id").String()), 0, 32)
	if err != nil {
		return nil, fmt.Errorf("%w : message %v : %v", ErrSchemaFormat, section.Name(), err)
	}
	message := NewMessage(section.Name(), uint32(id), uint8(section.Key("Dlc").MustUint(8)))
	message.Extended = section.Key("Extended").MustBool(false)
	// Cycle time is given in milliseconds
	message.CycleTime = time.Duration(section.Key("CycleTime").MustInt(0)) * time.Millisecond
	if section.HasKey("Senders") {
		message.Senders = section.Key("Senders").Strings(",")
	}
	return message, nil
}

func parseSignal(section *ini.Section) (*Signal, error) {
	parts := strings.SplitN(section.Name(), ".", 2)
	signal := &Signal{
		Name:   parts[1],
		Start:  uint16(section.Key("Start").MustUint(0)),
		Length: uint8(section.Key("Length").MustUint(1)),
		Signed: section.Key("Signed").MustBool(false),
		Float:  section.Key("Float").MustBool(false),
		Scale:  section.Key("Scale").MustFloat64(1),
		Offset: section.Key("Offset").MustFloat64(0),
		Unit:   section.Key("Unit").String(),
		Muxer:  section.Key("Muxer").MustBool(false),
	}
	switch order := strings.ToLower(section.Key("Order").String()); order {
	case "", "intel", "little":
		signal.ByteOrder = LittleEndian
	case "motorola", "big":
		signal.ByteOrder = BigEndian
	default:
		return nil, fmt.Errorf("%w : signal %v has unknown byte order %q", ErrSchemaFormat, section.Name(), order)
	}
	if section.HasKey("Min") {
		min := section.Key("Min").MustFloat64(0)
		signal.Min = &min
	}
	if section.HasKey("Max") {
		max := section.Key("Max").MustFloat64(0)
		signal.Max = &max
	}
	if section.HasKey("MuxSelector") {
		signal.MuxSelector = section.Key("MuxSelector").String()
		for _, v := range section.Key("MuxValues").Ints(",") {
			signal.MuxValues = append(signal.MuxValues, int64(v))
		}
	}
	if section.HasKey("Choices") {
		choices, err := parseChoices(section.Key("Choices").String())
		if err != nil {
			return nil, fmt.Errorf("%w : signal %v : %v", ErrSchemaFormat, section.Name(), err)
		}
		signal.Choices = choices
	}
	return signal, nil
}

// Choices are declared as a comma separated value:name list,
// e.g. "0:Off,1:Idle,2:Running". Declaration order is preserved.
func parseChoices(raw string) ([]Choice, error) {
	var choices []Choice
	for _, field := range strings.Split(raw, ",") {
		pair := strings.SplitN(strings.TrimSpace(field), ":", 2)
		if len(pair) != 2 {
			return nil, fmt.Errorf("expected value:name, got %q", field)
		}
		value, err := strconv.ParseInt(pair[0], 0, 64)
		if err != nil {
			return nil, err
		}
		choices = append(choices, Choice{Value: value, Name: pair[1]})
	}
	return choices, nil
}

// CollectSchemaFiles flattens a selection of schema file paths and/or
// folders containing schema files into a list of file paths.
func CollectSchemaFiles(paths ...string) ([]string, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".csf") {
				continue
			}
			files = append(files, filepath.Join(path, entry.Name()))
		}
	}
	return files, nil
}

// LoadStore parses all the given schema files and/or folders into a
// multi database store, in argument order.
func LoadStore(paths ...string) (*Store, error) {
	files, err := CollectSchemaFiles(paths...)
	if err != nil {
		return nil, err
	}
	store := NewStore()
	for _, file := range files {
		db, err := ParseFile(file)
		if err != nil {
			return nil, err
		}
		store.Add(db)
	}
	return store, nil
}
