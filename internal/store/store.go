// Package store implements the semicolon-delimited persistence format
// named in spec.md §6 as an "external collaborator": server config lines
// (S;), admin credential lines (A;), and registered-user lines (U;).
// The core never parses or writes this file directly; it only depends on
// the Store interface, which callers satisfy with FileStore or a test
// double.
package store

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ServerConfig is the parsed content of an "S;" line.
type ServerConfig struct {
	ServerName string
	Address    string

	// Main-server form.
	MainServerOrNone string
	UsersFilePath    string

	// Secondary form.
	MainName    string
	MainAddress string

	Secondary bool
}

// AdminCredential is the parsed content of an "A;" line.
type AdminCredential struct {
	Password string
	Nickname string
}

// PersistedUser is the parsed content of a "U;" line.
type PersistedUser struct {
	Nickname string
	Address  string
	Username string
	RealName string
	Server   string
	Password string
}

// Store is the pluggable persistence contract the core depends on.
type Store interface {
	LoadConfig(path string) (*ServerConfig, []AdminCredential, error)
	LoadUsers(path string) ([]PersistedUser, error)
	SaveUsers(path string, users []PersistedUser) error
}

// FileStore implements Store against the on-disk semicolon format.
type FileStore struct{}

// NewFileStore returns the default on-disk Store.
func NewFileStore() *FileStore {
	return &FileStore{}
}

// LoadConfig reads S; and A; lines from path.
func (FileStore) LoadConfig(path string) (*ServerConfig, []AdminCredential, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "store: open config")
	}
	defer f.Close()

	var cfg *ServerConfig
	var admins []AdminCredential

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ";")
		switch fields[0] {
		case "S":
			parsed, err := parseServerLine(fields)
			if err != nil {
				return nil, nil, errors.Wrapf(err, "store: line %d", lineNo)
			}
			if cfg != nil {
				return nil, nil, errors.Errorf("store: line %d: duplicate S; line", lineNo)
			}
			cfg = parsed
		case "A":
			if len(fields) != 3 {
				return nil, nil, errors.Errorf("store: line %d: malformed A; line", lineNo)
			}
			admins = append(admins, AdminCredential{Password: fields[1], Nickname: fields[2]})
		default:
			return nil, nil, errors.Errorf("store: line %d: unknown tag %q", lineNo, fields[0])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, errors.Wrap(err, "store: read config")
	}
	if cfg == nil {
		return nil, nil, errors.New("store: config file has no S; line")
	}

	return cfg, admins, nil
}

func parseServerLine(fields []string) (*ServerConfig, error) {
	if len(fields) != 5 {
		return nil, errors.New("malformed S; line")
	}
	cfg := &ServerConfig{ServerName: fields[1], Address: fields[2]}
	// Main form: S;name;address;main_server_or_"none";users_file_path.
	// Secondary form: S;name;own_address;main_name;main_address.
	// The main form's third field is either "none" or another server
	// name with no colon; the secondary form's fourth field is a
	// host:port. We disambiguate on whether field 4 looks like an
	// address.
	if strings.Contains(fields[4], ":") {
		cfg.Secondary = true
		cfg.MainName = fields[3]
		cfg.MainAddress = fields[4]
	} else {
		cfg.MainServerOrNone = fields[3]
		cfg.UsersFilePath = fields[4]
	}
	return cfg, nil
}

// LoadUsers reads U; lines from path.
func (FileStore) LoadUsers(path string) ([]PersistedUser, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "store: open users")
	}
	defer f.Close()

	var users []PersistedUser
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ";")
		if len(fields) != 7 || fields[0] != "U" {
			return nil, errors.Errorf("store: line %d: malformed U; line", lineNo)
		}
		users = append(users, PersistedUser{
			Nickname: fields[1],
			Address:  fields[2],
			Username: fields[3],
			RealName: fields[4],
			Server:   fields[5],
			Password: fields[6],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "store: read users")
	}
	return users, nil
}

// SaveUsers atomically rewrites path with users: write to a temp file in
// the same directory, then rename over the original.
func (FileStore) SaveUsers(path string, users []PersistedUser) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".fedircd-users-*.tmp")
	if err != nil {
		return errors.Wrap(err, "store: create temp file")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	w := bufio.NewWriter(tmp)
	for _, u := range users {
		if _, err := w.WriteString(strings.Join([]string{
			"U", u.Nickname, u.Address, u.Username, u.RealName, u.Server, u.Password,
		}, ";") + "\n"); err != nil {
			tmp.Close()
			return errors.Wrap(err, "store: write temp file")
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "store: flush temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "store: fsync temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "store: close temp file")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Wrap(err, "store: rename temp file")
	}
	return nil
}
