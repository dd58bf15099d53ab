// Command peerstakectl manages signing keys and sends signed requests to a
// peerstake server.
//
//	peerstakectl keygen  -out key.json
//	peerstakectl encrypt -key 0x... -out key.json
//	peerstakectl address -keyfile key.json
//	peerstakectl call    -keyfile key.json POST /api/markets/1/bets '{"option":0}'
//
// Key file passwords are read from PEERSTAKE_KEY_PASSWORD (a .env file in the
// working directory is honoured).
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/alanyoungcy/peerstake/internal/crypto"
)

const passwordEnv = "PEERSTAKE_KEY_PASSWORD"

func usage() {
	fmt.Fprintf(os.Stderr, `usage: peerstakectl <command> [flags]

commands:
  keygen   generate a key and write it encrypted
  encrypt  encrypt an existing hex key
  address  print the identity of a key
  call     sign and send an API request: call [flags] METHOD PATH [BODY|-]
`)
}

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "keygen":
		err = keygen(args)
	case "encrypt":
		err = encrypt(args)
	case "address":
		err = address(args)
	case "call":
		err = call(ctx, args)
	case "help", "-h", "--help":
		usage()
		return
	default:
		usage()
		err = fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "peerstakectl: %v\n", err)
		os.Exit(1)
	}
}

// keyFlags registers the key source flags shared by address and call.
func keyFlags(fs *flag.FlagSet) *crypto.KeyConfig {
	cfg := &crypto.KeyConfig{}
	fs.StringVar(&cfg.RawPrivateKey, "key", os.Getenv("PEERSTAKE_PRIVATE_KEY"), "hex private key")
	fs.StringVar(&cfg.EncryptedKeyPath, "keyfile", os.Getenv("PEERSTAKE_KEY_FILE"), "encrypted key file")
	return cfg
}

func loadSigner(cfg *crypto.KeyConfig) (*crypto.Signer, error) {
	cfg.KeyPassword = os.Getenv(passwordEnv)
	return crypto.LoadSigner(*cfg)
}

func password() (string, error) {
	pw := os.Getenv(passwordEnv)
	if pw == "" {
		return "", fmt.Errorf("%s must be set", passwordEnv)
	}
	return pw, nil
}

func keygen(args []string) error {
	fs := flag.NewFlagSet("keygen", flag.ExitOnError)
	out := fs.String("out", "key.json", "output file")
	_ = fs.Parse(args)

	pw, err := password()
	if err != nil {
		return err
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		return err
	}
	return writeKey(*out, key, pw)
}

func encrypt(args []string) error {
	fs := flag.NewFlagSet("encrypt", flag.ExitOnError)
	key := fs.String("key", os.Getenv("PEERSTAKE_PRIVATE_KEY"), "hex private key")
	out := fs.String("out", "key.json", "output file")
	_ = fs.Parse(args)

	if *key == "" {
		return errors.New("encrypt: -key is required")
	}
	pw, err := password()
	if err != nil {
		return err
	}
	return writeKey(*out, *key, pw)
}

func writeKey(path, key, pw string) error {
	s, err := crypto.NewSigner(key)
	if err != nil {
		return err
	}
	if err := crypto.WriteKeyFile(path, strings.TrimPrefix(key, "0x"), pw); err != nil {
		return err
	}
	fmt.Printf("wrote %s\naddress %s\n", path, s.Address().Hex())
	return nil
}

func address(args []string) error {
	fs := flag.NewFlagSet("address", flag.ExitOnError)
	keyCfg := keyFlags(fs)
	_ = fs.Parse(args)

	s, err := loadSigner(keyCfg)
	if err != nil {
		return err
	}
	fmt.Println(s.Address().Hex())
	return nil
}

func call(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("call", flag.ExitOnError)
	keyCfg := keyFlags(fs)
	baseURL := fs.String("url", envOr("PEERSTAKE_URL", "http://localhost:8000"), "server base URL")
	timeout := fs.Duration("timeout", 15*time.Second, "request timeout")
	_ = fs.Parse(args)

	rest := fs.Args()
	if len(rest) < 2 || len(rest) > 3 {
		return errors.New("call: want METHOD PATH [BODY|-]")
	}
	method, path := strings.ToUpper(rest[0]), rest[1]

	var body []byte
	if len(rest) == 3 {
		if rest[2] == "-" {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("call: read stdin: %w", err)
			}
			body = b
		} else {
			body = []byte(rest[2])
		}
	}

	s, err := loadSigner(keyCfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(*baseURL, "/")+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("call: build request: %w", err)
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := s.SignHTTP(req, body, time.Now()); err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("call: %w", err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("call: read response: %w", err)
	}
	fmt.Fprintln(os.Stderr, resp.Status)
	os.Stdout.Write(out)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("call: server returned %s", resp.Status)
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
