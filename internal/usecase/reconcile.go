package usecase

import (
	"context"
	"log"

	"crossid/internal/domain"
)

// Reconciler repairs the two seams where the store and the ledgers can drift:
// identity rows whose mint was confirmed but never recorded, and credentials
// whose anchor transaction failed after commit.
type Reconciler struct {
	Identities  IdentityRepository
	Credentials CredentialRepository
	Chains      GatewayRegistry
}

type ReconcileReport struct {
	Examined int `json:"examined"`
	Repaired int `json:"repaired"`
	Skipped  int `json:"skipped"`
}

// ReconcileIdentities reads the token id back from each row's minting chain.
// Rows where the chain confirms a token get it recorded; rows the chain does
// not know keep waiting, the ledger stays the source of truth for token ids.
func (r *Reconciler) ReconcileIdentities(ctx context.Context) (*ReconcileReport, error) {
	records, err := r.Identities.ListMissingToken(ctx)
	if err != nil {
		return nil, err
	}
	report := &ReconcileReport{Examined: len(records)}
	for _, record := range records {
		gateway, ok := r.Chains.Gateway(record.ChainID)
		if !ok {
			log.Printf("reconcile %s: no gateway for chain %q", record.DID, record.ChainID)
			report.Skipped++
			continue
		}
		tokenID, err := gateway.GetTokenIDForDID(ctx, record.DID)
		if err != nil {
			log.Printf("reconcile %s: token not confirmed on %s: %v", record.DID, record.ChainID, err)
			report.Skipped++
			continue
		}
		if err := r.Identities.SetTokenID(ctx, record.DID, tokenID); err != nil {
			log.Printf("reconcile %s: record token %d: %v", record.DID, tokenID, err)
			report.Skipped++
			continue
		}
		report.Repaired++
	}
	return report, nil
}

// ReconcileCredentials retries the on-chain anchor for credentials the issue
// path left unanchored.
func (r *Reconciler) ReconcileCredentials(ctx context.Context, limit int) (*ReconcileReport, error) {
	credentials, err := r.Credentials.ListUnanchored(ctx, limit)
	if err != nil {
		return nil, err
	}
	report := &ReconcileReport{Examined: len(credentials)}
	for _, credential := range credentials {
		subject, err := r.Identities.GetByDID(ctx, credential.SubjectDID)
		if err != nil {
			log.Printf("reconcile %s: subject %s: %v", credential.CredentialHash, credential.SubjectDID, err)
			report.Skipped++
			continue
		}
		gateway, ok := r.Chains.Gateway(subject.ChainID)
		if !ok {
			log.Printf("reconcile %s: no gateway for chain %q", credential.CredentialHash, subject.ChainID)
			report.Skipped++
			continue
		}
		active := credential.Status == domain.CredentialStatusActive
		if _, err := gateway.UpdateCredentialStatus(ctx, credential.IdentityTokenID, credential.CredentialHash, active); err != nil {
			log.Printf("reconcile %s: anchor on %s: %v", credential.CredentialHash, subject.ChainID, err)
			report.Skipped++
			continue
		}
		if err := r.Credentials.SetAnchored(ctx, credential.CredentialHash, true); err != nil {
			log.Printf("reconcile %s: flag: %v", credential.CredentialHash, err)
			report.Skipped++
			continue
		}
		report.Repaired++
	}
	return report, nil
}
