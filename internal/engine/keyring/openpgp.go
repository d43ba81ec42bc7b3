package keyring

import (
	"bytes"
	"encoding/hex"
	"slices"
	"strings"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/packet"

	certDomain "github.com/allisson/keycache/internal/certificate/domain"
)

var armorHeader = []byte("-----BEGIN PGP")

// readEntities reads every key in data, which may hold binary packets or any
// number of concatenated armored blocks.
func readEntities(data []byte) (openpgp.EntityList, error) {
	if !bytes.Contains(data, armorHeader) {
		return openpgp.ReadKeyRing(bytes.NewReader(data))
	}

	var entities openpgp.EntityList
	for _, block := range splitArmored(data) {
		list, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(block))
		if err != nil {
			return nil, err
		}
		entities = append(entities, list...)
	}
	return entities, nil
}

func splitArmored(data []byte) [][]byte {
	var blocks [][]byte
	for {
		start := bytes.Index(data, armorHeader)
		if start < 0 {
			return blocks
		}
		data = data[start:]
		next := bytes.Index(data[len(armorHeader):], armorHeader)
		if next < 0 {
			return append(blocks, data)
		}
		end := next + len(armorHeader)
		blocks = append(blocks, data[:end])
		data = data[end:]
	}
}

// fromEntity converts an OpenPGP entity. The primary key is reported as the
// first subkey, as the GnuPG engine does.
func fromEntity(e *openpgp.Entity, trusted map[string]bool, origin string, now time.Time) *certDomain.Certificate {
	fpr := hex.EncodeToString(e.PrimaryKey.Fingerprint)
	fpr = certDomain.NormalizeIdentifier(fpr)

	var selfSig *packet.Signature
	if id := e.PrimaryIdentity(); id != nil {
		selfSig = id.SelfSignature
	}

	primary := certDomain.Subkey{
		Fingerprint: fpr,
		KeyID:       certDomain.KeyIDFromFingerprint(fpr),
		HasSecret:   hasSecret(e.PrivateKey),
		Revoked:     e.Revoked(now),
		CreatedAt:   e.PrimaryKey.CreationTime.UTC(),
		ExpiresAt:   expiry(e.PrimaryKey, selfSig),
	}
	applyFlags(&primary, selfSig, e.PrimaryKey.PubKeyAlgo)

	c := &certDomain.Certificate{
		Protocol:    certDomain.OpenPGP,
		Fingerprint: fpr,
		KeyID:       primary.KeyID,
		Revoked:     primary.Revoked,
		HasSecret:   primary.HasSecret,
		CreatedAt:   primary.CreatedAt,
		ExpiresAt:   primary.ExpiresAt,
		Origin:      origin,
		Subkeys:     []certDomain.Subkey{primary},
	}
	if selfSig != nil {
		c.Expired = e.PrimaryKey.KeyExpired(selfSig, now)
	}

	for _, sub := range e.Subkeys {
		subFpr := certDomain.NormalizeIdentifier(hex.EncodeToString(sub.PublicKey.Fingerprint))
		sk := certDomain.Subkey{
			Fingerprint: subFpr,
			KeyID:       certDomain.KeyIDFromFingerprint(subFpr),
			HasSecret:   hasSecret(sub.PrivateKey),
			Revoked:     sub.Revoked(now),
			CreatedAt:   sub.PublicKey.CreationTime.UTC(),
			ExpiresAt:   expiry(sub.PublicKey, sub.Sig),
		}
		if sub.Sig != nil {
			sk.Expired = sub.PublicKey.KeyExpired(sub.Sig, now)
		}
		applyFlags(&sk, sub.Sig, sub.PublicKey.PubKeyAlgo)
		c.Subkeys = append(c.Subkeys, sk)
		if sk.HasSecret {
			c.HasSecret = true
		}
	}

	// Whole-certificate capabilities mean "some usable key can do it", like
	// the upper-case capability letters of a colon listing.
	for _, sk := range c.Subkeys {
		if sk.IsBad() || sk.ExpiredAt(now) {
			continue
		}
		c.CanSign = c.CanSign || sk.CanSign
		c.CanEncrypt = c.CanEncrypt || sk.CanEncrypt
		c.CanCertify = c.CanCertify || sk.CanCertify
		c.CanAuthenticate = c.CanAuthenticate || sk.CanAuthenticate
	}

	validity := certDomain.ValidityUnknown
	switch {
	case c.HasSecret:
		validity = certDomain.ValidityUltimate
	case trusted[fpr]:
		validity = certDomain.ValidityFull
	}
	c.OwnerTrust = validity

	for _, id := range e.Identities {
		uid := certDomain.UserID{
			ID:       id.Name,
			Validity: validity,
			Revoked:  id.Revoked(now),
		}
		if id.UserId != nil {
			uid.Name = id.UserId.Name
			uid.Comment = id.UserId.Comment
			uid.Email = certDomain.EmailOrEmpty(id.UserId.Email)
		}
		if uid.Revoked {
			uid.Validity = certDomain.ValidityNever
		}
		c.UserIDs = append(c.UserIDs, uid)
	}
	sortUserIDs(c.UserIDs, e.PrimaryIdentity())

	return c
}

func hasSecret(pk *packet.PrivateKey) bool {
	return pk != nil && !pk.Dummy()
}

func expiry(pk *packet.PublicKey, sig *packet.Signature) time.Time {
	if sig == nil || sig.KeyLifetimeSecs == nil || *sig.KeyLifetimeSecs == 0 {
		return time.Time{}
	}
	return pk.CreationTime.Add(time.Duration(*sig.KeyLifetimeSecs) * time.Second).UTC()
}

// applyFlags copies the key flags of the binding signature. Keys without
// flags get what their algorithm can do.
func applyFlags(sk *certDomain.Subkey, sig *packet.Signature, algo packet.PublicKeyAlgorithm) {
	if sig != nil && sig.FlagsValid {
		sk.CanSign = sig.FlagSign
		sk.CanEncrypt = sig.FlagEncryptCommunications || sig.FlagEncryptStorage
		sk.CanCertify = sig.FlagCertify
		sk.CanAuthenticate = sig.FlagAuthenticate
		return
	}
	sk.CanSign = algo.CanSign()
	sk.CanEncrypt = algo.CanEncrypt()
}

// sortUserIDs puts the primary identity first and orders the rest by ID;
// identities come out of a map.
func sortUserIDs(uids []certDomain.UserID, primary *openpgp.Identity) {
	primaryID := ""
	if primary != nil {
		primaryID = primary.Name
	}
	slices.SortStableFunc(uids, func(a, b certDomain.UserID) int {
		aPrimary, bPrimary := a.ID == primaryID, b.ID == primaryID
		switch {
		case aPrimary && !bPrimary:
			return -1
		case bPrimary && !aPrimary:
			return 1
		default:
			return strings.Compare(a.ID, b.ID)
		}
	})
}
