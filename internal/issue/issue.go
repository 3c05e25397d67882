// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

type Id int

const (
	ConfigLoadFailedId Id = iota + 1
	PackageNotConfiguredId
	ManifestNotFoundId
	ManifestParseErrorId
	ProvisionFailedId
	DependencyUnresolvedId
	LintFailedId
	TestRunFailedId
	ShellNotFoundId
	PermissionDeniedId
	ConsoleStartFailedId
	BadEncryptionKeyId
)

type MarkdownMsg string

type HttpLink string

type Renderer interface {
	Render(in string, stylePath string) (string, error)
}

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []HttpLink  // optional pointers into the docs
	extLinks []HttpLink  // external links that might be useful for the user
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

func (i *Issue) Render(stylePath string) (string, error) {
	extraMd := ""
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		extraMd += "\n\n"
		extraMd += "## See also: "
		for _, link := range i.docLinks {
			extraMd += "- [" + string(link) + "]"
		}
		for _, link := range i.extLinks {
			extraMd += "- [" + string(link) + "]"
		}
	}
	return render(string(i.mdMsg)+extraMd, stylePath)
}

var (
	render = glamour.Render

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

Your labkit config file contains syntax errors or invalid values.

## Things you can try:
- Check the error message above for the specific field
- Validate the file against the schema:
~~~
$ labkit config validate
~~~
- Show the effective configuration:
~~~
$ labkit config show
~~~`,
	}

	packageNotConfiguredIssue = &Issue{
		id: PackageNotConfiguredId,
		mdMsg: `
# Unknown package!

The package you named is not present in the workbench configuration.

## Things you can try:
- List configured packages:
~~~
$ labkit list
~~~
- Check for typos in the package name
- Add a [packages] entry for it in your config file`,
	}

	manifestNotFoundIssue = &Issue{
		id: ManifestNotFoundId,
		mdMsg: `
# Dependency manifest not found!

Every package needs a deps.toml manifest next to its sources before its
dependencies can be installed.

## Example manifest:
~~~toml
[[dependency]]
name = "configkit"
version = ">=1.2"

[[dependency]]
name = "wire"
version = "=0.9.1"
source = "../wire"
~~~

## Things you can try:
- Create a deps.toml in the package root
- Point the package's manifest setting at the right file`,
	}

	manifestParseErrorIssue = &Issue{
		id: ManifestParseErrorId,
		mdMsg: `
# Failed to parse dependency manifest!

The deps.toml manifest exists but could not be decoded.

## Common issues:
- Invalid TOML syntax
- A [[dependency]] entry without a name
- An empty version constraint

## Things you can try:
- Check the error message above for the offending line
- Run with verbose mode for more details:
~~~
$ labkit --verbose install <package>
~~~`,
	}

	provisionFailedIssue = &Issue{
		id: ProvisionFailedId,
		mdMsg: `
# Environment provisioning failed!

The isolated environment directory could not be created.

## Common causes:
- The environment root is not writable
- A file (not a directory) already exists at the environment path

## Things you can try:
- Check permissions on the environment root
- Remove stale state and retry:
~~~
$ labkit clean <package>
$ labkit install <package>
~~~`,
	}

	dependencyUnresolvedIssue = &Issue{
		id: DependencyUnresolvedId,
		mdMsg: `
# Dependency could not be resolved!

A manifest entry names a dependency that is not present in any configured
registry directory and has no local source path.

## Things you can try:
- Add a 'source' path to the manifest entry
- Add the registry directory that holds the dependency to your config
- Verify the dependency name and version constraint`,
	}

	lintFailedIssue = &Issue{
		id: LintFailedId,
		mdMsg: `
# Lint reported violations!

The static-analysis tool exited non-zero for this package. The violations
are listed in the tool's own output above.

## Things you can try:
- Fix the reported violations and re-run:
~~~
$ labkit test <package>
~~~
- Adjust the lint command in the package's config entry`,
	}

	testRunFailedIssue = &Issue{
		id: TestRunFailedId,
		mdMsg: `
# Test run failed!

The package's test suite reported failures. Lint stages were skipped.

## Things you can try:
- Read the streamed test output above for the failing cases
- Re-run just this package:
~~~
$ labkit test <package>
~~~`,
	}

	shellNotFoundIssue = &Issue{
		id: ShellNotFoundId,
		mdMsg: `
# Shell not found!

Could not find a suitable shell for the 'native' runtime.

## Shells we look for:
- Linux/macOS: $SHELL, bash, sh
- Windows: pwsh, powershell, cmd

## Things you can try:
- Install bash or another POSIX shell
- Set the SHELL environment variable
- Use the 'virtual' runtime instead (built-in shell):
~~~toml
runtime = "virtual"
~~~`,
	}

	permissionDeniedIssue = &Issue{
		id: PermissionDeniedId,
		mdMsg: `
# Permission denied!

You don't have permission to perform this operation.

## Common causes:
- The environment root is owned by another user
- A stage command writes to a protected directory

## Things you can try:
- Check file/directory permissions
- Run labkit from a directory you own
- Point env_root at a writable location`,
	}

	consoleStartFailedIssue = &Issue{
		id: ConsoleStartFailedId,
		mdMsg: `
# Operator console failed to start!

The chatops SSH console could not bind or accept connections.

## Common causes:
- The configured port is already in use
- The host address is not local to this machine

## Things you can try:
- Pick another port in the chatops config
- Use port 0 to let the console auto-select a free port`,
	}

	badEncryptionKeyIssue = &Issue{
		id: BadEncryptionKeyId,
		mdMsg: `
# Invalid encryption key!

The key is not a valid base64-encoded 256-bit fernet key.

## Things you can try:
- Generate a fresh key:
~~~
$ labkit enclog genkey
~~~
- Check that the key was not truncated when copied`,
	}

	issues = map[Id]*Issue{
		configLoadFailedIssue.Id():     configLoadFailedIssue,
		packageNotConfiguredIssue.Id(): packageNotConfiguredIssue,
		manifestNotFoundIssue.Id():     manifestNotFoundIssue,
		manifestParseErrorIssue.Id():   manifestParseErrorIssue,
		provisionFailedIssue.Id():      provisionFailedIssue,
		dependencyUnresolvedIssue.Id(): dependencyUnresolvedIssue,
		lintFailedIssue.Id():           lintFailedIssue,
		testRunFailedIssue.Id():        testRunFailedIssue,
		shellNotFoundIssue.Id():        shellNotFoundIssue,
		permissionDeniedIssue.Id():     permissionDeniedIssue,
		consoleStartFailedIssue.Id():   consoleStartFailedIssue,
		badEncryptionKeyIssue.Id():     badEncryptionKeyIssue,
	}
)

func Values() []*Issue {
	return maps.Values(issues)
}

func Get(id Id) *Issue {
	return issues[id]
}
