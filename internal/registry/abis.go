package registry

// ABI fragments used by the chain reader and execution planners.
const (
	ERC20MinimalABI = `[
		{"name":"name","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
		{"name":"symbol","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
		{"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
		{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
	]`

	// AgencyABI covers the ERC-7527 agency surface. Oracle reads take the
	// supply point as a 32-byte big-endian word.
	AgencyABI = `[
		{"name":"getStrategy","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"app","type":"address"},{"name":"asset","type":"tuple","components":[{"name":"currency","type":"address"},{"name":"basePremium","type":"uint256"},{"name":"feeRecipient","type":"address"},{"name":"mintFeePercent","type":"uint16"},{"name":"burnFeePercent","type":"uint16"}]},{"name":"attributeData","type":"bytes"}]},
		{"name":"getWrapOracle","type":"function","stateMutability":"view","inputs":[{"name":"data","type":"bytes"}],"outputs":[{"name":"swap","type":"uint256"},{"name":"fee","type":"uint256"}]},
		{"name":"getUnwrapOracle","type":"function","stateMutability":"view","inputs":[{"name":"data","type":"bytes"}],"outputs":[{"name":"swap","type":"uint256"},{"name":"fee","type":"uint256"}]},
		{"name":"wrap","type":"function","stateMutability":"payable","inputs":[{"name":"to","type":"address"},{"name":"data","type":"bytes"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"unwrap","type":"function","stateMutability":"payable","inputs":[{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"},{"name":"data","type":"bytes"}],"outputs":[]}
	]`

	// AppABI is the wrapper-token (ERC-721 + name registry) surface.
	AppABI = `[
		{"name":"name","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
		{"name":"symbol","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
		{"name":"totalSupply","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"getMaxSupply","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"ownerOf","type":"function","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
		{"name":"getApproved","type":"function","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
		{"name":"isApprovedForAll","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"operator","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
		{"name":"isRecordExists","type":"function","stateMutability":"view","inputs":[{"name":"node","type":"bytes32"}],"outputs":[{"name":"","type":"bool"}]}
	]`

	AgencyRouterABI = `[
		{"name":"wrap","type":"function","stateMutability":"nonpayable","inputs":[{"name":"agency","type":"address"},{"name":"price","type":"uint256"},{"name":"name","type":"string"}],"outputs":[{"name":"","type":"uint256"}]}
	]`

	Multicall3ABI = `[
		{"name":"aggregate3","type":"function","stateMutability":"payable","inputs":[{"name":"calls","type":"tuple[]","components":[{"name":"target","type":"address"},{"name":"allowFailure","type":"bool"},{"name":"callData","type":"bytes"}]}],"outputs":[{"name":"returnData","type":"tuple[]","components":[{"name":"success","type":"bool"},{"name":"returnData","type":"bytes"}]}]}
	]`
)
