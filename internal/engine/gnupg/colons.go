package gnupg

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"

	certDomain "github.com/allisson/keycache/internal/certificate/domain"
	"github.com/allisson/keycache/internal/errors"
)

// Colon listing field positions (zero based).
const (
	fieldType = iota
	fieldValidity
	fieldLength
	fieldAlgo
	fieldKeyID
	fieldCreated
	fieldExpires
	fieldSerial
	fieldOwnerTrust
	fieldUserID
	fieldSigClass
	fieldCapabilities
	fieldIssuer
	fieldFlags
	fieldToken
)

// ErrMalformedListing indicates a colon listing the parser cannot make sense of.
var ErrMalformedListing = errors.New("malformed colon listing")

// parser accumulates certificates from a colon listing.
type parser struct {
	protocol certDomain.Protocol
	origin   string
	certs    []*certDomain.Certificate
	current  *certDomain.Certificate
	subkey   int // index into current.Subkeys the next fpr record belongs to
}

// ParseColonListing parses the output of gpg or gpgsm run with --with-colons.
//
// Primary keys are reported as the first entry of Subkeys so that key-ID and
// subkey lookups treat them uniformly. Unknown record types are skipped.
func ParseColonListing(r io.Reader, protocol certDomain.Protocol, origin string) ([]*certDomain.Certificate, error) {
	p := &parser{protocol: protocol, origin: origin, subkey: -1}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		if err := p.record(strings.Split(line, ":")); err != nil {
			return nil, errors.Wrapf(err, "line %d", lineNo)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	p.flush()
	return p.certs, nil
}

func field(fields []string, i int) string {
	if i < len(fields) {
		return fields[i]
	}
	return ""
}

func (p *parser) record(fields []string) error {
	switch field(fields, fieldType) {
	case "pub", "sec", "crt", "crs":
		p.flush()
		p.primary(fields)
	case "sub", "ssb":
		if p.current == nil {
			return ErrMalformedListing
		}
		p.addSubkey(fields)
	case "fpr":
		if p.current == nil {
			return ErrMalformedListing
		}
		return p.fingerprint(fields)
	case "uid":
		if p.current == nil {
			return ErrMalformedListing
		}
		p.userID(fields)
	case "grp":
		if p.current == nil {
			return ErrMalformedListing
		}
		p.keygrip(fields)
	}
	return nil
}

func (p *parser) flush() {
	if p.current == nil {
		return
	}
	c := p.current
	p.current = nil
	p.subkey = -1

	if c.Fingerprint == "" {
		return
	}
	if len(c.Subkeys) > 0 {
		c.CreatedAt = c.Subkeys[0].CreatedAt
		c.ExpiresAt = c.Subkeys[0].ExpiresAt
	}
	if c.Protocol == certDomain.CMS {
		// gpgsm lists X.509 certificates as a single key.
		c.Subkeys = nil
	}
	for _, sk := range c.Subkeys {
		if sk.HasSecret {
			c.HasSecret = true
		}
	}
	p.certs = append(p.certs, c)
}

func (p *parser) primary(fields []string) {
	recType := field(fields, fieldType)
	sk := parseKey(fields)
	secret := recType == "sec" || recType == "crs"
	sk.HasSecret = secret && hasSecretMaterial(fields)

	validity := field(fields, fieldValidity)
	caps := field(fields, fieldCapabilities)

	c := &certDomain.Certificate{
		Protocol:        p.protocol,
		KeyID:           sk.KeyID,
		OwnerTrust:      certDomain.ValidityFromColonField(field(fields, fieldOwnerTrust)),
		Revoked:         sk.Revoked,
		Expired:         sk.Expired,
		Disabled:        sk.Disabled || strings.Contains(caps, "D"),
		Invalid:         sk.Invalid,
		CanSign:         strings.Contains(caps, "S"),
		CanEncrypt:      strings.Contains(caps, "E"),
		CanCertify:      strings.Contains(caps, "C"),
		CanAuthenticate: strings.Contains(caps, "A"),
		Origin:          p.origin,
		Subkeys:         []certDomain.Subkey{sk},
	}
	if p.protocol == certDomain.CMS {
		c.IssuerName = unescape(field(fields, fieldUserID))
		c.HasSecret = sk.HasSecret
		// gpgsm leaves the user ID validity to the certificate record.
		if v := certDomain.ValidityFromColonField(validity); v > c.OwnerTrust {
			c.OwnerTrust = v
		}
	}
	p.current = c
	p.subkey = 0
}

func (p *parser) addSubkey(fields []string) {
	sk := parseKey(fields)
	sk.HasSecret = field(fields, fieldType) == "ssb" && hasSecretMaterial(fields)
	p.current.Subkeys = append(p.current.Subkeys, sk)
	p.subkey = len(p.current.Subkeys) - 1
}

func (p *parser) fingerprint(fields []string) error {
	fpr, err := certDomain.NormalizeFingerprint(field(fields, fieldUserID))
	if err != nil {
		return err
	}
	c := p.current
	switch {
	case p.subkey >= len(c.Subkeys):
		// A further fpr record for a key already fingerprinted.
		return nil
	case p.subkey == 0:
		c.Fingerprint = fpr
		if len(c.Subkeys) > 0 {
			c.Subkeys[0].Fingerprint = fpr
		}
		if issuer := field(fields, fieldIssuer); issuer != "" {
			c.IssuerFingerprint = certDomain.NormalizeIdentifier(issuer)
			c.IsRoot = c.IssuerFingerprint == fpr
		}
	default:
		c.Subkeys[p.subkey].Fingerprint = fpr
	}
	p.subkey = len(c.Subkeys)
	return nil
}

// keygrip attaches a grp record to the key fingerprinted by the preceding fpr
// record. A grp record without one is ignored.
func (p *parser) keygrip(fields []string) {
	grip := certDomain.NormalizeIdentifier(field(fields, fieldUserID))
	c := p.current
	i := p.subkey - 1
	if grip == "" || i < 0 || i >= len(c.Subkeys) {
		return
	}
	if i == 0 {
		c.Keygrip = grip
	}
	c.Subkeys[i].Keygrip = grip
}

func (p *parser) userID(fields []string) {
	raw := unescape(field(fields, fieldUserID))
	validity := field(fields, fieldValidity)
	uid := certDomain.UserID{
		ID:       raw,
		Validity: certDomain.ValidityFromColonField(validity),
		Revoked:  strings.HasPrefix(validity, "r"),
		Invalid:  strings.HasPrefix(validity, "i"),
	}

	if p.protocol == certDomain.CMS {
		switch {
		case strings.HasPrefix(raw, "<") && strings.HasSuffix(raw, ">"):
			uid.Email = certDomain.EmailOrEmpty(raw[1 : len(raw)-1])
		case p.current.SubjectName == "":
			p.current.SubjectName = raw
			uid.Email = emailFromDN(raw)
		}
		if uid.Validity == certDomain.ValidityUnknown {
			uid.Validity = p.current.OwnerTrust
		}
	} else {
		uid.Name, uid.Comment, uid.Email = splitUserID(raw)
	}

	p.current.UserIDs = append(p.current.UserIDs, uid)
}

func parseKey(fields []string) certDomain.Subkey {
	validity := field(fields, fieldValidity)
	caps := field(fields, fieldCapabilities)
	return certDomain.Subkey{
		KeyID:           certDomain.NormalizeIdentifier(field(fields, fieldKeyID)),
		CanSign:         strings.Contains(caps, "s"),
		CanEncrypt:      strings.Contains(caps, "e"),
		CanCertify:      strings.Contains(caps, "c"),
		CanAuthenticate: strings.Contains(caps, "a"),
		Revoked:         strings.HasPrefix(validity, "r"),
		Expired:         strings.HasPrefix(validity, "e"),
		Disabled:        strings.HasPrefix(validity, "d"),
		Invalid:         strings.HasPrefix(validity, "i"),
		CreatedAt:       parseDate(field(fields, fieldCreated)),
		ExpiresAt:       parseDate(field(fields, fieldExpires)),
	}
}

// hasSecretMaterial reads the token field of sec/ssb records: "#" marks a
// stub without secret material, anything else (empty, "+", a card serial)
// means the secret key can be used.
func hasSecretMaterial(fields []string) bool {
	return field(fields, fieldToken) != "#"
}

// parseDate accepts seconds since the epoch and ISO 8601 basic format
// (yyyymmddThhmmss), both of which GnuPG emits.
func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if strings.Contains(s, "T") {
		t, err := time.Parse("20060102T150405", s)
		if err != nil {
			return time.Time{}
		}
		return t.UTC()
	}
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil || secs <= 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}

// unescape decodes the \xHH escapes GnuPG uses for colons and control characters.
func unescape(s string) string {
	if !strings.Contains(s, `\x`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) && s[i+1] == 'x' {
			if v, err := strconv.ParseUint(s[i+2:i+4], 16, 8); err == nil {
				b.WriteByte(byte(v))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// splitUserID splits an OpenPGP user ID of the form "Name (Comment) <email>".
func splitUserID(raw string) (name, comment, email string) {
	rest := strings.TrimSpace(raw)
	if open := strings.LastIndex(rest, "<"); open >= 0 && strings.HasSuffix(rest, ">") {
		email = certDomain.EmailOrEmpty(rest[open+1 : len(rest)-1])
		rest = strings.TrimSpace(rest[:open])
	} else if e := certDomain.EmailOrEmpty(rest); e != "" && !strings.Contains(rest, " ") {
		return "", "", e
	}
	if open := strings.LastIndex(rest, "("); open >= 0 && strings.HasSuffix(rest, ")") {
		comment = rest[open+1 : len(rest)-1]
		rest = strings.TrimSpace(rest[:open])
	}
	return rest, comment, email
}

// emailFromDN extracts the EMAIL (or E) attribute of a distinguished name.
func emailFromDN(dn string) string {
	for _, rdn := range strings.Split(dn, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(rdn), "=")
		if !ok {
			continue
		}
		switch strings.ToUpper(strings.TrimSpace(key)) {
		case "EMAIL", "E", "EMAILADDRESS", "1.2.840.113549.1.9.1":
			return certDomain.EmailOrEmpty(value)
		}
	}
	return ""
}
