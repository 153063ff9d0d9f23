package sshclient

import (
	"fmt"
	"net"
	"strconv"

	"github.com/MrEthical07/goRemote/internal"
	"github.com/MrEthical07/goRemote/vault"
)

// DefaultPort is used when Params.Port is zero.
const DefaultPort = 22

// Params identifies an SSH endpoint and the credentials to log in with.
// When PrivateKey is an encrypted PEM block, Password is also its
// passphrase.
type Params struct {
	Host       string
	Port       int
	Username   string
	Password   string
	PrivateKey string
}

// Validate fills defaults and checks required fields.
func (p *Params) Validate() error {
	if p.Host == "" {
		return fmt.Errorf("%w: host is required", internal.ErrValidation)
	}
	if p.Username == "" {
		return fmt.Errorf("%w: username is required", internal.ErrValidation)
	}
	if p.Port == 0 {
		p.Port = DefaultPort
	}
	if p.Port < 1 || p.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", internal.ErrValidation, p.Port)
	}
	return nil
}

// Addr returns host:port.
func (p Params) Addr() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// ToVault flattens p for storage. Empty optional fields are left out.
func (p Params) ToVault() vault.Params {
	out := vault.Params{
		"host":     p.Host,
		"port":     int64(p.Port),
		"username": p.Username,
	}
	if p.Password != "" {
		out["password"] = p.Password
	}
	if p.PrivateKey != "" {
		out["privateKey"] = p.PrivateKey
	}
	return out
}

// FromVault rebuilds Params from a stored map and validates them.
func FromVault(v vault.Params) (Params, error) {
	port, _ := v.Int("port")
	p := Params{
		Host:       v.String("host"),
		Port:       int(port),
		Username:   v.String("username"),
		Password:   v.String("password"),
		PrivateKey: v.String("privateKey"),
	}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}
