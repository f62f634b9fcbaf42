/*
Package security groups the dmkit transport and access controls.

  - auth checks API keys on the resolve endpoint and scopes them to
    products.
  - tls serves HTTPS and reloads the certificate when its file changes.
  - secrets resolves ${secret:name} references in API key configuration.
*/
package security
