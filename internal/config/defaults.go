package config

// DefaultConfigYAML contains the default configuration YAML content. It is
// used by both `ralph init` and the global-config bootstrap to ensure a
// freshly initialized project and a freshly initialized user both start from
// the same recognized key set (§6).
const DefaultConfigYAML = `# Ralph TUI configuration
# Recognized keys: configVersion, agent, command, maxIterations,
# iterationDelay, autoCommit, tracker, trackerOptions, parallel, worktree,
# errorHandling, conflictResolution, agentOptions, sandbox.

configVersion: 1

agent: claude
maxIterations: 0
iterationDelay: 2s
autoCommit: true

tracker: json
trackerOptions:
  path: ""
  epicId: ""

parallel: 1
worktree: ""

errorHandling:
  strategy: stop
  maxRetries: 2
  retryDelayMs: 5000
  continueOnNonZeroExit: false

conflictResolution:
  enabled: true
  confidenceThreshold: 0.75
  timeoutMs: 120000
  maxFiles: 20

agentOptions:
  model: ""
  timeout: 15m
  envExclude: []
  envPassthrough: []
  defaultFlags: []

sandbox:
  enabled: false
  mode: workspace-write
  allowPaths: []
  readOnlyPaths: []
  network: false

log:
  level: info
  format: auto
  file: ""
`
