package names

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
)

// Bundles is the name-registration collaborator. It returns groups of
// instructions to execute; the relay flattens them in order.
type Bundles interface {
	CreateSubdomain(ctx context.Context, fqdn string, owner solana.PublicKey) ([][]solana.Instruction, error)
	TransferOwnership(ctx context.Context, name string, newOwner, currentOwner solana.PublicKey) ([][]solana.Instruction, error)
}

// HTTPBundleClient implements Bundles against the name service's JSON API.
type HTTPBundleClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPBundleClient(baseURL string) *HTTPBundleClient {
	return &HTTPBundleClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type wireAccount struct {
	Pubkey     string `json:"pubkey"`
	IsSigner   bool   `json:"isSigner"`
	IsWritable bool   `json:"isWritable"`
}

type wireInstruction struct {
	ProgramID string        `json:"programId"`
	Accounts  []wireAccount `json:"accounts"`
	Data      string        `json:"data"`
}

type bundlesResponse struct {
	Bundles [][]wireInstruction `json:"bundles"`
}

func (c *HTTPBundleClient) CreateSubdomain(ctx context.Context, fqdn string, owner solana.PublicKey) ([][]solana.Instruction, error) {
	return c.post(ctx, "/instructions/create-subdomain", map[string]string{
		"name":  fqdn,
		"owner": owner.String(),
	})
}

func (c *HTTPBundleClient) TransferOwnership(ctx context.Context, name string, newOwner, currentOwner solana.PublicKey) ([][]solana.Instruction, error) {
	return c.post(ctx, "/instructions/transfer", map[string]string{
		"name":         name,
		"newOwner":     newOwner.String(),
		"currentOwner": currentOwner.String(),
	})
}

func (c *HTTPBundleClient) post(ctx context.Context, path string, body any) ([][]solana.Instruction, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call name service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("name service returned status %d", resp.StatusCode)
	}

	var out bundlesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode bundles: %w", err)
	}
	return toInstructions(out.Bundles)
}

func toInstructions(in [][]wireInstruction) ([][]solana.Instruction, error) {
	out := make([][]solana.Instruction, 0, len(in))
	for _, group := range in {
		ixs := make([]solana.Instruction, 0, len(group))
		for _, w := range group {
			program, err := solana.PublicKeyFromBase58(w.ProgramID)
			if err != nil {
				return nil, fmt.Errorf("invalid program id %q: %w", w.ProgramID, err)
			}
			metas := make(solana.AccountMetaSlice, 0, len(w.Accounts))
			for _, a := range w.Accounts {
				key, err := solana.PublicKeyFromBase58(a.Pubkey)
				if err != nil {
					return nil, fmt.Errorf("invalid account %q: %w", a.Pubkey, err)
				}
				metas = append(metas, solana.NewAccountMeta(key, a.IsWritable, a.IsSigner))
			}
			data, err := base64.StdEncoding.DecodeString(w.Data)
			if err != nil {
				return nil, fmt.Errorf("invalid instruction data: %w", err)
			}
			ixs = append(ixs, solana.NewInstruction(program, metas, data))
		}
		out = append(out, ixs)
	}
	return out, nil
}
