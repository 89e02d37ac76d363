// Package politeness gates every outbound request on robots.txt rules and a
// per-host request budget. A Gate owns an explicit Registry of per-host state;
// nothing here is package-global.
package politeness
