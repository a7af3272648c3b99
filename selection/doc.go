// Package selection implements the element-set solver behind bundle
// resolution.
//
// Every installable unit contributes an Element identified by (name,
// version). Elements sharing a name form an ElementSet. Each element lists
// Dependencies on other names with a version range; a dependency is
// satisfied by any live element of that name whose version lies in the
// range and that its Allowed predicate accepts.
//
// # Algorithm
//
// Solve computes the largest set of elements that can be resolved:
//
//  1. Start from the fixed elements (already resolved in an earlier round)
//     and repeatedly add every element whose mandatory dependencies all
//     have a candidate inside the set. This least fixed point never
//     admits an element whose mandatory dependencies form a cycle.
//  2. Singleton sets keep at most one member. A fixed member wins;
//     otherwise the Policy chooses and the losers are disabled.
//  3. Unsatisfied elements whose mandatory dependencies form a cycle are
//     broken up by disabling the cycle members of one element-set: the set
//     of the lowest element id taking part in the cycle with the lowest
//     member id. The solve then restarts. Each restart permanently disables
//     at least one element, so the loop ends after at most one retry per
//     element.
//  4. Every resolvable element has each dependency wired to the
//     candidate the Policy ranks first, or to all candidates for
//     dependencies accepting multiple suppliers.
//
// # Policies
//
// LeastPerturbation prefers candidates that were resolved before the
// current round, then candidates satisfying the most requirers of the set,
// then the highest version. AlwaysHighest prefers the highest version.
package selection
