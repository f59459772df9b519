// Command rendezvousctl is an admin client for a running rendezvousd
// server: it issues plain HTTP requests carrying the same headers a
// real client would send.
package main

import (
	"bytes"
	"encoding/base64"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/christophhagen/RendezvousServer/internal/crypto"
	"github.com/christophhagen/RendezvousServer/internal/wire"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	allowCmd := flag.NewFlagSet("allow", flag.ExitOnError)
	allowServer := allowCmd.String("server", "http://localhost:8080", "server base URL")
	allowToken := allowCmd.String("token", "", "admin token, base64")
	allowUsername := allowCmd.String("username", "", "username to allow")

	deleteCmd := flag.NewFlagSet("delete", flag.ExitOnError)
	deleteServer := deleteCmd.String("server", "http://localhost:8080", "server base URL")
	deleteToken := deleteCmd.String("token", "", "admin token, base64")
	deleteUser := deleteCmd.String("user", "", "target user key, base64")

	renewCmd := flag.NewFlagSet("renew", flag.ExitOnError)
	renewServer := renewCmd.String("server", "http://localhost:8080", "server base URL")
	renewToken := renewCmd.String("token", "", "admin token, base64")

	resetCmd := flag.NewFlagSet("reset", flag.ExitOnError)
	resetServer := resetCmd.String("server", "http://localhost:8080", "server base URL")
	resetToken := resetCmd.String("token", "", "admin token, base64")

	accountsCmd := flag.NewFlagSet("accounts", flag.ExitOnError)
	accountsServer := accountsCmd.String("server", "http://localhost:8080", "server base URL")
	accountsToken := accountsCmd.String("token", "", "admin token, base64")

	registerCmd := flag.NewFlagSet("register", flag.ExitOnError)
	registerServer := registerCmd.String("server", "http://localhost:8080", "server base URL")
	registerUsername := registerCmd.String("username", "", "username, must already be allowed")
	registerPin := registerCmd.String("pin", "", "pin issued by admin allow")
	registerApp := registerCmd.String("app", "chat", "application identifier for the first device")

	switch os.Args[1] {
	case "allow":
		_ = allowCmd.Parse(os.Args[2:])
		dieIf(cmdAllow(*allowServer, *allowToken, *allowUsername))
	case "delete":
		_ = deleteCmd.Parse(os.Args[2:])
		dieIf(cmdDelete(*deleteServer, *deleteToken, *deleteUser))
	case "renew":
		_ = renewCmd.Parse(os.Args[2:])
		dieIf(cmdRenew(*renewServer, *renewToken))
	case "reset":
		_ = resetCmd.Parse(os.Args[2:])
		dieIf(cmdReset(*resetServer, *resetToken))
	case "accounts":
		_ = accountsCmd.Parse(os.Args[2:])
		dieIf(cmdAccounts(*accountsServer, *accountsToken))
	case "register":
		_ = registerCmd.Parse(os.Args[2:])
		dieIf(cmdRegister(*registerServer, *registerUsername, *registerPin, *registerApp))
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Print(`rendezvousctl commands:

  allow    --server URL --token ADMIN_TOKEN --username NAME
  delete   --server URL --token ADMIN_TOKEN --user USER_KEY
  renew    --server URL --token ADMIN_TOKEN
  reset    --server URL --token ADMIN_TOKEN
  accounts --server URL --token ADMIN_TOKEN
  register --server URL --username NAME --pin PIN [--app chat]

All keys and tokens are given and printed as base64.
`)
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

func cmdAllow(server, token, username string) error {
	if token == "" || username == "" {
		return fmt.Errorf("--token and --username are required")
	}
	req, err := http.NewRequest(http.MethodPost, server+"/admin/allow", nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Auth-Token", token)
	req.Header.Set("X-Username", username)
	body, err := doRequest(req)
	if err != nil {
		return err
	}
	var allowed wire.AllowedUser
	if err := wire.Unmarshal(body, &allowed); err != nil {
		return err
	}
	fmt.Printf("allowed %q, pin %d\n", username, allowed.Pin)
	return nil
}

func cmdDelete(server, token, userKeyB64 string) error {
	if token == "" || userKeyB64 == "" {
		return fmt.Errorf("--token and --user are required")
	}
	req, err := http.NewRequest(http.MethodPost, server+"/admin/delete", nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Auth-Token", token)
	req.Header.Set("X-Target-User", userKeyB64)
	_, err = doRequest(req)
	if err != nil {
		return err
	}
	fmt.Println("deleted")
	return nil
}

func cmdRenew(server, token string) error {
	if token == "" {
		return fmt.Errorf("--token is required")
	}
	req, err := http.NewRequest(http.MethodGet, server+"/admin/renew", nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Auth-Token", token)
	body, err := doRequest(req)
	if err != nil {
		return err
	}
	fmt.Println("new admin token:", base64.StdEncoding.EncodeToString(body))
	return nil
}

func cmdReset(server, token string) error {
	if token == "" {
		return fmt.Errorf("--token is required")
	}
	req, err := http.NewRequest(http.MethodGet, server+"/admin/reset", nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Auth-Token", token)
	_, err = doRequest(req)
	if err != nil {
		return err
	}
	fmt.Println("reset")
	return nil
}

func cmdAccounts(server, token string) error {
	if token == "" {
		return fmt.Errorf("--token is required")
	}
	req, err := http.NewRequest(http.MethodGet, server+"/admin/accounts", nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Auth-Token", token)
	body, err := doRequest(req)
	if err != nil {
		return err
	}
	var list struct {
		Accounts []struct {
			UserKey     []byte `cbor:"1,keyasint"`
			Name        string `cbor:"2,keyasint"`
			DeviceCount int    `cbor:"3,keyasint"`
		} `cbor:"1,keyasint"`
	}
	if err := wire.Unmarshal(body, &list); err != nil {
		return err
	}
	for _, a := range list.Accounts {
		fmt.Printf("%s %q devices=%d\n", base64.StdEncoding.EncodeToString(a.UserKey), a.Name, a.DeviceCount)
	}
	return nil
}

// cmdRegister is a development convenience: it generates a fresh
// identity key and a single device, self-signs the registration
// bundle, and posts it. Real clients hold their own key material.
func cmdRegister(server, username, pin, app string) error {
	if username == "" || pin == "" {
		return fmt.Errorf("--username and --pin are required")
	}
	pub, priv, err := crypto.GenerateKey()
	if err != nil {
		return err
	}
	deviceKey, err := crypto.RandomBytes(32)
	if err != nil {
		return err
	}
	user := wire.InternalUser{
		IdentityKey: pub,
		Name:        username,
		Devices: []wire.Device{{
			DeviceKey:   deviceKey,
			IsActive:    true,
			Application: app,
		}},
		Timestamp: time.Now().Unix(),
	}
	signed, err := user.SignedBytes()
	if err != nil {
		return err
	}
	sig, err := crypto.Sign(priv, signed)
	if err != nil {
		return err
	}
	user.Signature = sig

	var pinValue uint32
	if _, err := fmt.Sscanf(pin, "%d", &pinValue); err != nil {
		return fmt.Errorf("bad --pin: %w", err)
	}
	bundle := wire.RegistrationBundle{Info: user, Pin: pinValue}
	body, err := wire.Marshal(bundle)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, server+"/user/register", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("X-Pin", pin)
	resp, err := doRequest(req)
	if err != nil {
		return err
	}
	fmt.Println("identity key:", base64.StdEncoding.EncodeToString(pub))
	fmt.Println("device key:  ", base64.StdEncoding.EncodeToString(deviceKey))
	fmt.Println("device token:", base64.StdEncoding.EncodeToString(resp))
	return nil
}

func doRequest(req *http.Request) ([]byte, error) {
	resp, err := httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func dieIf(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
