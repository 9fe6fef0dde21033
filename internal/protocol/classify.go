package protocol

// service registers one port for one or both transports.
type service struct {
	port uint16
	tcp  bool
	udp  bool
	app  AppProtocol
}

var services = []service{
	{20, true, false, FTPData},
	{21, true, false, FTP},
	{22, true, false, SSH},
	{23, true, false, Telnet},
	{25, true, false, SMTP},
	{53, true, true, DNS},
	{67, false, true, DHCP},
	{68, false, true, DHCP},
	{69, false, true, TFTP},
	{80, true, false, HTTP},
	{110, true, false, POP3},
	{123, false, true, NTP},
	{137, false, true, NetBIOS},
	{138, false, true, NetBIOS},
	{139, true, false, NetBIOS},
	{143, true, false, IMAP},
	{161, false, true, SNMP},
	{162, false, true, SNMP},
	{179, true, false, BGP},
	{389, true, true, LDAP},
	{443, true, true, HTTPS},
	{465, true, false, SMTPS},
	{514, false, true, Syslog},
	{587, true, false, SMTP},
	{636, true, false, LDAPS},
	{993, true, false, IMAPS},
	{995, true, false, POP3S},
	{1194, true, true, OpenVPN},
	{1883, true, false, MQTT},
	{3306, true, false, MySQL},
	{3389, true, true, RDP},
	{5060, true, true, SIP},
	{5061, true, false, SIP},
	{5222, true, false, XMPP},
	{5269, true, false, XMPP},
	{5432, true, false, PostgreSQL},
	{6379, true, false, Redis},
	{8080, true, false, HTTPAlt},
	{8883, true, false, MQTT},
}

var (
	tcpPorts = make(map[uint16]AppProtocol)
	udpPorts = make(map[uint16]AppProtocol)
)

func init() {
	for _, s := range services {
		if s.tcp {
			tcpPorts[s.port] = s.app
		}
		if s.udp {
			udpPorts[s.port] = s.app
		}
	}
}

// Classify maps a transport and a single port to an application protocol.
// Unregistered ports and transports other than TCP and UDP yield Other.
func Classify(t TransProtocol, port uint16) AppProtocol {
	var table map[uint16]AppProtocol
	switch t {
	case TCP:
		table = tcpPorts
	case UDP:
		table = udpPorts
	default:
		return Other
	}
	if app, ok := table[port]; ok {
		return app
	}
	return Other
}

// ClassifyPair classifies a packet by both of its ports. A registered port
// wins over an unregistered one; when both are registered the lower port
// (the well-known side) wins and equal ports resolve through the source.
func ClassifyPair(t TransProtocol, src, dst uint16) AppProtocol {
	srcApp := Classify(t, src)
	dstApp := Classify(t, dst)
	switch {
	case srcApp == Other:
		return dstApp
	case dstApp == Other:
		return srcApp
	case dst < src:
		return dstApp
	default:
		return srcApp
	}
}
