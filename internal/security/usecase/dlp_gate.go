package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"sort"
	"time"

	secdomain "daybrief-backend/internal/security/domain"
	secrepo "daybrief-backend/internal/security/repository"
	syncdomain "daybrief-backend/internal/sync/domain"
	"daybrief-backend/pkg/dlp"
	crypto "daybrief-backend/pkg/utils/crypto"
)

// dlpGate implements DLPGate interface
type dlpGate struct {
	scanner       Scanner
	vaultRepo     secrepo.VaultRepository
	encryptionKey string
}

// NewDLPGate creates a new instance of dlpGate
func NewDLPGate(scanner Scanner, vaultRepo secrepo.VaultRepository, encryptionKey string) DLPGate {
	return &dlpGate{
		scanner:       scanner,
		vaultRepo:     vaultRepo,
		encryptionKey: encryptionKey,
	}
}

// scanField addresses one scannable string inside an item.
type scanField struct {
	item  int
	field string // "subject", "body", "title", "name"
}

// RedactItems scans every text field of the batch in one pass and replaces
// each finding with a [TYPE_NNN] token. Numbering is per (user, info type)
// in first-seen order and is stable across runs: a value already vaulted
// reuses its token.
func (g *dlpGate) RedactItems(ctx context.Context, userID string, items []syncdomain.Item, policy Policy) ([]syncdomain.Item, error) {
	var fields []scanField
	var texts []string
	for i := range items {
		for _, f := range scannableFields(&items[i]) {
			fields = append(fields, scanField{item: i, field: f.name})
			texts = append(texts, f.value)
		}
	}
	if len(texts) == 0 {
		return items, nil
	}

	findings, err := g.scanner.Scan(ctx, texts)
	if err != nil {
		if policy == FailOpen {
			log.Printf("[Security] DLP scan unavailable, passing %d items through unredacted: %v", len(items), err)
			return items, nil
		}
		return nil, fmt.Errorf("DLP scan failed: %w", err)
	}

	out := make([]syncdomain.Item, len(items))
	copy(out, items)

	tokens := map[string]string{} // quote -> token, within this pass
	for idx, fs := range findings {
		if len(fs) == 0 {
			continue
		}
		redacted, err := g.redactText(userID, texts[idx], fs, tokens)
		if err != nil {
			return nil, err
		}
		setField(&out[fields[idx].item], fields[idx].field, redacted)
	}
	return out, nil
}

// RedactTexts runs the same scan-and-tokenize pass over bare strings. Tokens
// share the per-user vault with RedactItems, so a value redacted at ingestion
// resolves to the same token here.
func (g *dlpGate) RedactTexts(ctx context.Context, userID string, texts []string, policy Policy) ([]string, error) {
	if len(texts) == 0 {
		return texts, nil
	}

	findings, err := g.scanner.Scan(ctx, texts)
	if err != nil {
		if policy == FailOpen {
			log.Printf("[Security] DLP scan unavailable, passing %d texts through unredacted: %v", len(texts), err)
			return texts, nil
		}
		return nil, fmt.Errorf("DLP scan failed: %w", err)
	}

	out := make([]string, len(texts))
	copy(out, texts)

	tokens := map[string]string{}
	for idx, fs := range findings {
		if len(fs) == 0 {
			continue
		}
		redacted, err := g.redactText(userID, texts[idx], fs, tokens)
		if err != nil {
			return nil, err
		}
		out[idx] = redacted
	}
	return out, nil
}

// redactText replaces findings back-to-front so earlier offsets stay valid.
func (g *dlpGate) redactText(userID, text string, findings []dlp.Finding, tokens map[string]string) (string, error) {
	sorted := make([]dlp.Finding, len(findings))
	copy(sorted, findings)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Begin > sorted[j].Begin })

	result := text
	for _, f := range sorted {
		if f.Begin < 0 || f.End > len(result) || f.Begin >= f.End {
			continue
		}
		quote := result[f.Begin:f.End]
		token, err := g.tokenFor(userID, f.InfoType, quote, tokens)
		if err != nil {
			return "", err
		}
		result = result[:f.Begin] + token + result[f.End:]
	}
	return result, nil
}

func (g *dlpGate) tokenFor(userID, infoType, quote string, tokens map[string]string) (string, error) {
	if t, ok := tokens[quote]; ok {
		return t, nil
	}

	hash := quoteHash(quote)
	existing, err := g.vaultRepo.FindByUserAndQuoteHash(userID, hash)
	if err != nil {
		return "", err
	}
	if existing != nil {
		tokens[quote] = existing.Token
		return existing.Token, nil
	}

	count, err := g.vaultRepo.CountByUserAndInfoType(userID, infoType)
	if err != nil {
		return "", err
	}
	token := fmt.Sprintf("[%s_%03d]", infoType, count+1)

	ciphertext, err := crypto.Encrypt(quote, g.encryptionKey)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt vault entry: %w", err)
	}
	if err := g.vaultRepo.Save(&secdomain.VaultEntry{
		UserID:     userID,
		Token:      token,
		InfoType:   infoType,
		QuoteHash:  hash,
		Ciphertext: ciphertext,
	}); err != nil {
		return "", fmt.Errorf("failed to save vault entry: %w", err)
	}

	tokens[quote] = token
	return token, nil
}

// Reveal decrypts the original value behind a token for its owner.
func (g *dlpGate) Reveal(userID, token string) (string, error) {
	entry, err := g.vaultRepo.FindByUserAndToken(userID, token)
	if err != nil {
		return "", err
	}
	if entry == nil {
		return "", fmt.Errorf("no vault entry for token %s", token)
	}
	plain, err := crypto.Decrypt(entry.Ciphertext, g.encryptionKey)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt vault entry: %w", err)
	}
	return plain, nil
}

func (g *dlpGate) PurgeUser(userID string) error {
	return g.vaultRepo.DeleteByUser(userID)
}

// PurgeExpired drops vault entries created before the cutoff, keeping the
// vault on the same retention horizon as the records it redacted.
func (g *dlpGate) PurgeExpired(cutoff time.Time) error {
	n, err := g.vaultRepo.DeleteOlderThan(cutoff)
	if err != nil {
		return err
	}
	if n > 0 {
		log.Printf("[Security] Purged %d expired vault entries", n)
	}
	return nil
}

type fieldValue struct {
	name  string
	value string
}

func scannableFields(item *syncdomain.Item) []fieldValue {
	switch item.Kind {
	case syncdomain.KindEmail:
		return []fieldValue{{"subject", item.Subject}, {"body", item.Body}}
	case syncdomain.KindEvent:
		return []fieldValue{{"title", item.Title}}
	case syncdomain.KindDocument:
		return []fieldValue{{"name", item.Name}}
	}
	return nil
}

func setField(item *syncdomain.Item, field, value string) {
	switch field {
	case "subject":
		item.Subject = value
	case "body":
		item.Body = value
	case "title":
		item.Title = value
	case "name":
		item.Name = value
	}
}

func quoteHash(quote string) string {
	sum := sha256.Sum256([]byte(quote))
	return hex.EncodeToString(sum[:])
}
