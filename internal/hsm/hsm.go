// Package hsm wraps a PKCS#11 module as a process-wide, reference-counted
// engine, so that concurrent signing operations against the same module
// path share one Initialize/Finalize pair instead of reloading the module
// on every signature (spec.md §4.E, §9 design note on HSM session reuse).
//
// Grounded on digitorus-pdfsign's signers/pkcs11/pkcs11.go, which opens and
// tears down the module on every Sign call; this package keeps the same
// session/object lookup sequence but hoists module load/init to first use
// and keeps it alive until the last caller releases it.
package hsm

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"fmt"
	"io"
	"sync"

	"github.com/miekg/pkcs11"

	"github.com/esignhq/esign/internal/esignerr"
)

// engine is one loaded PKCS#11 module, shared by every Signer opened
// against the same ModulePath.
type engine struct {
	ctx      *pkcs11.Ctx
	refCount int
}

var (
	enginesMu sync.Mutex
	engines   = map[string]*engine{}
)

// acquire loads and initializes the module at modulePath if this is the
// first caller, or bumps the refcount of an already-loaded module.
func acquire(modulePath string) (*engine, error) {
	enginesMu.Lock()
	defer enginesMu.Unlock()

	if e, ok := engines[modulePath]; ok {
		e.refCount++
		return e, nil
	}

	ctx := pkcs11.New(modulePath)
	if ctx == nil {
		return nil, esignerr.Errorf(esignerr.HsmFailure, "hsm.acquire", "failed to load module %s", modulePath)
	}
	if err := ctx.Initialize(); err != nil {
		return nil, esignerr.New(esignerr.HsmFailure, "hsm.acquire", fmt.Errorf("initialize %s: %w", modulePath, err))
	}

	e := &engine{ctx: ctx, refCount: 1}
	engines[modulePath] = e
	return e, nil
}

// release drops a reference to the module at modulePath, tearing it down
// once the last caller has released it.
func release(modulePath string) {
	enginesMu.Lock()
	defer enginesMu.Unlock()

	e, ok := engines[modulePath]
	if !ok {
		return
	}
	e.refCount--
	if e.refCount > 0 {
		return
	}
	_ = e.ctx.Finalize()
	e.ctx.Destroy()
	delete(engines, modulePath)
}

// Signer implements crypto.Signer against a key held in a PKCS#11 token,
// via a process-wide shared engine for ModulePath.
type Signer struct {
	ModulePath string
	TokenLabel string
	KeyLabel   string
	PIN        string
	PublicKey  crypto.PublicKey

	engine *engine
}

// Open acquires (or reuses) the engine for modulePath and returns a Signer
// bound to the named token/key. Callers must call Close when done signing
// with it, to release the shared engine.
func Open(modulePath, tokenLabel, keyLabel, pin string, pub crypto.PublicKey) (*Signer, error) {
	if modulePath == "" {
		return nil, esignerr.Errorf(esignerr.HsmFailure, "hsm.Open", "module path is required")
	}
	e, err := acquire(modulePath)
	if err != nil {
		return nil, err
	}
	return &Signer{
		ModulePath: modulePath,
		TokenLabel: tokenLabel,
		KeyLabel:   keyLabel,
		PIN:        pin,
		PublicKey:  pub,
		engine:     e,
	}, nil
}

// Close releases this Signer's reference to its shared engine. Safe to
// call more than once.
func (s *Signer) Close() error {
	if s.engine == nil {
		return nil
	}
	release(s.ModulePath)
	s.engine = nil
	return nil
}

// Public returns the signer's public key.
func (s *Signer) Public() crypto.PublicKey { return s.PublicKey }

// Sign opens a session against the already-initialized module, logs in,
// locates the private key object by label, and signs digest. The session
// and login are per-call (tokens typically limit concurrent sessions per
// login), but the module itself is never reloaded.
func (s *Signer) Sign(_ io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	ctx := s.engine.ctx

	slots, err := ctx.GetSlotList(true)
	if err != nil {
		return nil, esignerr.New(esignerr.HsmFailure, "hsm.Signer.Sign", fmt.Errorf("get slots: %w", err))
	}

	var slotID uint
	found := false
	for _, sID := range slots {
		info, err := ctx.GetTokenInfo(sID)
		if err != nil {
			continue
		}
		if info.Label == s.TokenLabel || s.TokenLabel == "" {
			slotID = sID
			found = true
			break
		}
	}
	if !found {
		return nil, esignerr.Errorf(esignerr.HsmFailure, "hsm.Signer.Sign", "token %q not found", s.TokenLabel)
	}

	session, err := ctx.OpenSession(slotID, pkcs11.CKF_SERIAL_SESSION)
	if err != nil {
		return nil, esignerr.New(esignerr.HsmFailure, "hsm.Signer.Sign", fmt.Errorf("open session: %w", err))
	}
	defer func() { _ = ctx.CloseSession(session) }()

	if s.PIN != "" {
		if err := ctx.Login(session, pkcs11.CKU_USER, s.PIN); err != nil {
			return nil, esignerr.New(esignerr.HsmFailure, "hsm.Signer.Sign", fmt.Errorf("login: %w", err))
		}
		defer func() { _ = ctx.Logout(session) }()
	}

	template := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PRIVATE_KEY),
	}
	if s.KeyLabel != "" {
		template = append(template, pkcs11.NewAttribute(pkcs11.CKA_LABEL, s.KeyLabel))
	}

	if err := ctx.FindObjectsInit(session, template); err != nil {
		return nil, esignerr.New(esignerr.HsmFailure, "hsm.Signer.Sign", fmt.Errorf("find objects init: %w", err))
	}
	objs, _, err := ctx.FindObjects(session, 1)
	if err != nil {
		return nil, esignerr.New(esignerr.HsmFailure, "hsm.Signer.Sign", fmt.Errorf("find objects: %w", err))
	}
	if err := ctx.FindObjectsFinal(session); err != nil {
		return nil, esignerr.New(esignerr.HsmFailure, "hsm.Signer.Sign", fmt.Errorf("find objects final: %w", err))
	}
	if len(objs) == 0 {
		return nil, esignerr.Errorf(esignerr.HsmFailure, "hsm.Signer.Sign", "private key %q not found", s.KeyLabel)
	}
	privKey := objs[0]

	mechanism := mechanismFor(s.PublicKey)
	if mechanism == nil {
		return nil, esignerr.Errorf(esignerr.HsmFailure, "hsm.Signer.Sign", "unsupported public key type")
	}

	if err := ctx.SignInit(session, []*pkcs11.Mechanism{mechanism}, privKey); err != nil {
		return nil, esignerr.New(esignerr.HsmFailure, "hsm.Signer.Sign", fmt.Errorf("sign init: %w", err))
	}
	sig, err := ctx.Sign(session, digest)
	if err != nil {
		return nil, esignerr.New(esignerr.HsmFailure, "hsm.Signer.Sign", fmt.Errorf("sign: %w", err))
	}
	return sig, nil
}

func mechanismFor(pub crypto.PublicKey) *pkcs11.Mechanism {
	switch pub.(type) {
	case *rsa.PublicKey:
		return pkcs11.NewMechanism(pkcs11.CKM_RSA_PKCS, nil)
	case *ecdsa.PublicKey:
		return pkcs11.NewMechanism(pkcs11.CKM_ECDSA, nil)
	default:
		return nil
	}
}
