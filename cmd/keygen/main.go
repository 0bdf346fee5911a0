// Command keygen provisions the operator SSH key pair used for key-based
// device authentication. The public key is what gets registered on the
// fleet's devices; the private key stays with the operator.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/netfleet/backend/pkg/utils/sshkeygen"
)

func main() {
	keyPath := flag.String("key", "", "private key path (default ~/.ssh/id_ed25519)")
	flag.Parse()

	privateKeyPath := *keyPath
	if privateKeyPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			log.Fatalf("Failed to resolve home directory: %v", err)
		}
		privateKeyPath = filepath.Join(homeDir, ".ssh", "id_ed25519")
	}
	publicKeyPath := privateKeyPath + ".pub"

	if _, err := os.Stat(privateKeyPath); err == nil {
		fmt.Printf("Key pair already exists at %s, leaving it in place\n", privateKeyPath)
		return
	}

	fmt.Printf("Generating Ed25519 operator key pair\n")
	fmt.Printf("Private key: %s\n", privateKeyPath)
	fmt.Printf("Public key:  %s\n", publicKeyPath)

	if err := sshkeygen.GenerateEd25519KeyPair(privateKeyPath, publicKeyPath); err != nil {
		log.Fatalf("Failed to generate key pair: %v", err)
	}

	fmt.Println("Done. Register the public key on your devices to enable key auth.")
}
