// Package e2b provides a client for the E2B sandbox hosting service.
//
// The client covers the small part of the platform the broker needs: the
// control plane (list, create, connect and timeout management of sandboxes)
// and the per-sandbox data plane (file writes through envd and notebook cell
// execution through the code interpreter). Isolation, filesystem semantics and
// network exposure are implemented by the remote service.
//
// Usage:
//
//	client := e2b.NewClient(logger, e2b.Config{APIKey: key})
//	sbx, err := client.Create(ctx, "nextjs-developer", e2b.CreateOptions{
//	    Metadata: map[string]string{"userID": "u1"},
//	    Timeout:  10 * time.Minute,
//	}, "")
//	err = sbx.Files().Write(ctx, "/home/user/app/page.tsx", code)
//	url := "https://" + sbx.GetHost(3000)
package e2b
