package keyring

import (
	"bytes"
	"crypto"
	"crypto/sha1" //nolint:gosec // gpgsm identifies certificates by their SHA-1 fingerprint
	"crypto/x509"
	"encoding/asn1"
	"encoding/hex"
	"encoding/pem"
	"time"

	"github.com/samber/lo"

	certDomain "github.com/allisson/keycache/internal/certificate/domain"
)

var oidEmailAddress = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 1}

// bundle is the parsed content of one or more PEM files.
type bundle struct {
	certs []*x509.Certificate
	keys  []crypto.PublicKey // public halves of the private keys found
}

func (b *bundle) add(data []byte) error {
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			return nil
		}
		switch block.Type {
		case "CERTIFICATE":
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return err
			}
			b.certs = append(b.certs, cert)
		case "PRIVATE KEY", "RSA PRIVATE KEY", "EC PRIVATE KEY":
			if pub := publicKeyOf(block); pub != nil {
				b.keys = append(b.keys, pub)
			}
		}
	}
}

// publicKeyOf parses a private key block and returns its public key, or nil
// when the block cannot be parsed. Encrypted keys are not supported.
func publicKeyOf(block *pem.Block) crypto.PublicKey {
	var (
		key any
		err error
	)
	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		key, err = x509.ParseECPrivateKey(block.Bytes)
	default:
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	}
	if err != nil {
		return nil
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil
	}
	return signer.Public()
}

func (b *bundle) hasPrivateKey(cert *x509.Certificate) bool {
	pub, ok := cert.PublicKey.(interface{ Equal(crypto.PublicKey) bool })
	if !ok {
		return false
	}
	return lo.CountBy(b.keys, func(k crypto.PublicKey) bool { return pub.Equal(k) }) > 0
}

func x509Fingerprint(cert *x509.Certificate) string {
	sum := sha1.Sum(cert.Raw) //nolint:gosec
	return certDomain.NormalizeIdentifier(hex.EncodeToString(sum[:]))
}

func isSelfSigned(cert *x509.Certificate) bool {
	return bytes.Equal(cert.RawIssuer, cert.RawSubject) && cert.CheckSignatureFrom(cert) == nil
}

// issuerOf returns the certificate of the bundle that signed cert.
func (b *bundle) issuerOf(cert *x509.Certificate) *x509.Certificate {
	for _, candidate := range b.certs {
		if candidate == cert || !bytes.Equal(candidate.RawSubject, cert.RawIssuer) {
			continue
		}
		if cert.CheckSignatureFrom(candidate) == nil {
			return candidate
		}
	}
	return nil
}

// verifier checks certificates against the roots of the bundle.
type verifier struct {
	roots         *x509.CertPool
	intermediates *x509.CertPool
}

func (b *bundle) verifier() *verifier {
	v := &verifier{roots: x509.NewCertPool(), intermediates: x509.NewCertPool()}
	for _, cert := range b.certs {
		if isSelfSigned(cert) {
			v.roots.AddCert(cert)
		} else {
			v.intermediates.AddCert(cert)
		}
	}
	return v
}

func (v *verifier) chainsToRoot(cert *x509.Certificate, now time.Time) bool {
	_, err := cert.Verify(x509.VerifyOptions{
		Roots:         v.roots,
		Intermediates: v.intermediates,
		CurrentTime:   now,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	return err == nil
}

// fromX509 converts a certificate of the bundle.
func (b *bundle) fromX509(
	cert *x509.Certificate,
	v *verifier,
	trusted map[string]bool,
	origin string,
	now time.Time,
) *certDomain.Certificate {
	fpr := x509Fingerprint(cert)
	usage := cert.KeyUsage

	c := &certDomain.Certificate{
		Protocol:    certDomain.CMS,
		Fingerprint: fpr,
		KeyID:       certDomain.KeyIDFromFingerprint(fpr),
		IssuerName:  cert.Issuer.String(),
		SubjectName: cert.Subject.String(),
		HasSecret:   b.hasPrivateKey(cert),
		CreatedAt:   cert.NotBefore.UTC(),
		ExpiresAt:   cert.NotAfter.UTC(),
		Expired:     now.After(cert.NotAfter),
		Origin:      origin,
	}
	// Certificates without a key usage extension may be used for anything.
	if usage == 0 {
		c.CanSign, c.CanEncrypt = true, true
		c.CanCertify = cert.IsCA
	} else {
		c.CanSign = usage&(x509.KeyUsageDigitalSignature|x509.KeyUsageContentCommitment) != 0
		c.CanEncrypt = usage&(x509.KeyUsageKeyEncipherment|x509.KeyUsageDataEncipherment|x509.KeyUsageKeyAgreement) != 0
		c.CanCertify = usage&x509.KeyUsageCertSign != 0
	}

	switch {
	case isSelfSigned(cert):
		c.IsRoot = true
		c.IssuerFingerprint = fpr
	default:
		if issuer := b.issuerOf(cert); issuer != nil {
			c.IssuerFingerprint = x509Fingerprint(issuer)
		}
	}

	validity := certDomain.ValidityUnknown
	switch {
	case c.HasSecret:
		validity = certDomain.ValidityUltimate
	case trusted[fpr], v.chainsToRoot(cert, now):
		validity = certDomain.ValidityFull
	}
	c.OwnerTrust = validity

	c.UserIDs = append(c.UserIDs, certDomain.UserID{
		ID:       c.SubjectName,
		Name:     cert.Subject.CommonName,
		Email:    subjectEmail(cert),
		Validity: validity,
	})
	for _, addr := range cert.EmailAddresses {
		c.UserIDs = append(c.UserIDs, certDomain.UserID{
			ID:       "<" + addr + ">",
			Email:    certDomain.EmailOrEmpty(addr),
			Validity: validity,
		})
	}
	return c
}

func subjectEmail(cert *x509.Certificate) string {
	for _, name := range cert.Subject.Names {
		if name.Type.Equal(oidEmailAddress) {
			if s, ok := name.Value.(string); ok {
				return certDomain.EmailOrEmpty(s)
			}
		}
	}
	return ""
}
