package wallet

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// DefaultKeystorePath is where bittensor wallets live on disk.
const DefaultKeystorePath = "~/.bittensor/wallets"

// Info describes one coldkey wallet found in the keystore.
type Info struct {
	Name       string
	Path       string
	HotkeySS58 string
}

// Registration pairs a wallet with its UID on a subnet metagraph.
type Registration struct {
	Wallet Info
	UID    int
}

// ExpandPath resolves a leading ~ against the user home directory.
func ExpandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}

// Scan lists coldkey wallets under root whose name matches one of the
// prefixes (all wallets when prefixes is empty). Names sort naturally:
// c9 before c10.
func Scan(root, hotkey string, prefixes ...string) ([]Info, error) {
	root, err := ExpandPath(root)
	if err != nil {
		return nil, err
	}
	dirEntries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read keystore: %w", err)
	}

	names := make([]string, 0, len(dirEntries))
	for _, entry := range dirEntries {
		if !entry.IsDir() {
			continue
		}
		if len(prefixes) > 0 && !hasAnyPrefix(entry.Name(), prefixes) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Slice(names, func(i, j int) bool { return naturalLess(names[i], names[j]) })

	wallets := make([]Info, 0, len(names))
	for _, name := range names {
		info := Info{Name: name, Path: filepath.Join(root, name)}
		if ss58, err := readHotkeySS58(info.Path, hotkey); err == nil {
			info.HotkeySS58 = ss58
		}
		wallets = append(wallets, info)
	}
	return wallets, nil
}

// Registered filters wallets down to those whose hotkey appears in the
// metagraph hotkey list, attaching the UID (list index).
func Registered(wallets []Info, metagraphHotkeys []string) []Registration {
	index := make(map[string]int, len(metagraphHotkeys))
	for uid, hk := range metagraphHotkeys {
		index[hk] = uid
	}
	var out []Registration
	for _, w := range wallets {
		if w.HotkeySS58 == "" {
			continue
		}
		if uid, ok := index[w.HotkeySS58]; ok {
			out = append(out, Registration{Wallet: w, UID: uid})
		}
	}
	return out
}

func hasAnyPrefix(name string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// naturalLess orders by leading rune first, then a numeric suffix when
// both names carry one, so c9 sorts before c10.
func naturalLess(a, b string) bool {
	if a == "" || b == "" || a[0] != b[0] {
		return a < b
	}
	an, aerr := strconv.Atoi(a[1:])
	bn, berr := strconv.Atoi(b[1:])
	if aerr == nil && berr == nil {
		return an < bn
	}
	return a < b
}

// HotkeySS58 reads the ss58 address of a named hotkey under a wallet.
func HotkeySS58(root, walletName, hotkey string) (string, error) {
	root, err := ExpandPath(root)
	if err != nil {
		return "", err
	}
	return readHotkeySS58(filepath.Join(root, walletName), hotkey)
}

// ColdkeySS58 reads the public coldkey address of a wallet.
func ColdkeySS58(root, walletName string) (string, error) {
	root, err := ExpandPath(root)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(root, walletName, "coldkeypub.txt"))
	if err != nil {
		return "", err
	}
	var ck hotkeyFile
	if err := json.Unmarshal(data, &ck); err != nil {
		return "", fmt.Errorf("decode coldkeypub file: %w", err)
	}
	if ck.SS58Address == "" {
		return "", fmt.Errorf("coldkeypub file missing ss58Address")
	}
	return ck.SS58Address, nil
}

type hotkeyFile struct {
	SS58Address string `json:"ss58Address"`
}

func readHotkeySS58(walletPath, hotkey string) (string, error) {
	data, err := os.ReadFile(filepath.Join(walletPath, "hotkeys", hotkey))
	if err != nil {
		return "", err
	}
	var hk hotkeyFile
	if err := json.Unmarshal(data, &hk); err != nil {
		return "", fmt.Errorf("decode hotkey file: %w", err)
	}
	if hk.SS58Address == "" {
		return "", fmt.Errorf("hotkey file missing ss58Address")
	}
	return hk.SS58Address, nil
}
