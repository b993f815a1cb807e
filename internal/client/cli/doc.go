// Package cli implements the authmaker admin command line.
//
// Usage:
//
//	authmaker-cli [-a addr] [-s secret] [-o operator] [-t seconds] [-c file] <command> [args]
//
// Commands:
//
//	register [-client id] [-email e] [-website url] [-display name] [-offline-email e] [-admin] <username>
//	show <user-id>
//	website <user-id> <url>
//	scopes <user-id>
//	accounts <user-id>
//	activate <user-id> <activation-hash>
//	status <user-id> <status>
//	first [-config] <client-id | config-id>
//	avatar <user-id> <image-file>
//	ping
//	help
//
// Responses are printed as indented protobuf JSON.
package cli
