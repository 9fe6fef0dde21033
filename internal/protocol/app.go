package protocol

import (
	"fmt"
	"strings"

	"firestige.xyz/sniffer/internal/core"
)

// AppProtocol is an application protocol label resolved from port numbers.
type AppProtocol uint8

const (
	// AppAny matches every application protocol when used as a filter value.
	// Classify never returns it.
	AppAny AppProtocol = iota
	FTPData
	FTP
	SSH
	Telnet
	SMTP
	DNS
	DHCP
	TFTP
	HTTP
	POP3
	NTP
	NetBIOS
	IMAP
	SNMP
	BGP
	LDAP
	HTTPS
	SMTPS
	Syslog
	LDAPS
	IMAPS
	POP3S
	OpenVPN
	MQTT
	SIP
	MySQL
	RDP
	PostgreSQL
	XMPP
	Redis
	HTTPAlt
	Other

	appCount
)

var appNames = [appCount]string{
	AppAny:     "any",
	FTPData:    "FTP-data",
	FTP:        "FTP",
	SSH:        "SSH",
	Telnet:     "Telnet",
	SMTP:       "SMTP",
	DNS:        "DNS",
	DHCP:       "DHCP",
	TFTP:       "TFTP",
	HTTP:       "HTTP",
	POP3:       "POP3",
	NTP:        "NTP",
	NetBIOS:    "NetBIOS",
	IMAP:       "IMAP",
	SNMP:       "SNMP",
	BGP:        "BGP",
	LDAP:       "LDAP",
	HTTPS:      "HTTPS",
	SMTPS:      "SMTPS",
	Syslog:     "Syslog",
	LDAPS:      "LDAPS",
	IMAPS:      "IMAPS",
	POP3S:      "POP3S",
	OpenVPN:    "OpenVPN",
	MQTT:       "MQTT",
	SIP:        "SIP",
	MySQL:      "MySQL",
	RDP:        "RDP",
	PostgreSQL: "PostgreSQL",
	XMPP:       "XMPP",
	Redis:      "Redis",
	HTTPAlt:    "HTTP-alt",
	Other:      "Other",
}

func (a AppProtocol) String() string {
	if a < appCount {
		return appNames[a]
	}
	return fmt.Sprintf("AppProtocol(%d)", uint8(a))
}

// Valid reports whether a is a defined value.
func (a AppProtocol) Valid() bool {
	return a < appCount
}

// MarshalText implements encoding.TextMarshaler so the label is used as a JSON map key.
func (a AppProtocol) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("%w: application %d", core.ErrInvalidFilter, uint8(a))
	}
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *AppProtocol) UnmarshalText(text []byte) error {
	v, err := ParseAppProtocol(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// ParseAppProtocol parses a label, case-insensitively. The empty string means AppAny.
func ParseAppProtocol(s string) (AppProtocol, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return AppAny, nil
	}
	for i, name := range appNames {
		if strings.EqualFold(s, name) {
			return AppProtocol(i), nil
		}
	}
	return AppAny, fmt.Errorf("%w: unknown application protocol %q", core.ErrInvalidFilter, s)
}

// AllApps returns every label Classify can produce, in label order.
func AllApps() []AppProtocol {
	apps := make([]AppProtocol, 0, appCount-1)
	for a := FTPData; a < appCount; a++ {
		apps = append(apps, a)
	}
	return apps
}
