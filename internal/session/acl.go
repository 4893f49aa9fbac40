package session

import "strings"

// Allowed evaluates a user's ACL rule list against one command verb. Rules
// are "+token" or "-token" where token is a command verb or "@all".
// Deny-by-default: with no matching rule, access is refused. Rules are
// evaluated in order and the last matching rule wins, so a later "+cmd" can
// re-grant what an earlier "-@all" revoked.
func Allowed(rules []string, verb string) bool {
	allowed := false
	for _, rule := range rules {
		sign, target, ok := splitRule(rule)
		if !ok {
			continue
		}
		if strings.EqualFold(target, "@all") || strings.EqualFold(target, verb) {
			allowed = sign == '+'
		}
	}
	return allowed
}

// AllowedDatabase evaluates whether rules permit a USE binding the current
// database to dbname. Database-scoped rules ("+mydb"/"-mydb") constrain
// which database names the session may bind, per the design's ACL section;
// they do not grant or deny any other command. "+USE"/"-USE" and "@all"
// still apply, same last-match-wins order as Allowed.
func AllowedDatabase(rules []string, dbname string) bool {
	allowed := false
	for _, rule := range rules {
		sign, target, ok := splitRule(rule)
		if !ok {
			continue
		}
		if strings.EqualFold(target, "@all") ||
			strings.EqualFold(target, "USE") ||
			strings.EqualFold(target, dbname) {
			allowed = sign == '+'
		}
	}
	return allowed
}

func splitRule(rule string) (sign byte, target string, ok bool) {
	if len(rule) < 2 {
		return 0, "", false
	}
	sign = rule[0]
	if sign != '+' && sign != '-' {
		return 0, "", false
	}
	return sign, rule[1:], true
}
